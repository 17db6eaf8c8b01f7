// Package identity canonicalises loosely typed record identifiers.
//
// Identifiers reach the service as JSON numbers, numeric strings, SQL integers
// or nothing at all. Every join in the aggregation layer compares ID values
// produced here, so a string "42" and a number 42 always refer to the same
// record, while a missing identifier never matches anything.
package identity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ID is a canonical identifier. The zero value is the null ID.
type ID struct {
	Int64 int64
	Valid bool
}

// Null is the identifier that never matches.
var Null = ID{}

// New returns a valid ID for v.
func New(v int64) ID {
	return ID{Int64: v, Valid: true}
}

// Resolve canonicalises v. Integers, integral floats and numeric strings
// resolve to a valid ID; everything else resolves to Null. It never panics.
func Resolve(v interface{}) ID {
	v = deref(v)
	switch t := v.(type) {
	case nil:
		return Null
	case ID:
		return t
	case bool:
		return Null
	case string:
		return resolveString(t)
	case []byte:
		return resolveString(string(t))
	case json.Number:
		return resolveString(t.String())
	case float32, float64:
		f, err := cast.ToFloat64E(t)
		if err != nil {
			return Null
		}
		return fromFloat(f)
	case uint, uint64:
		u, err := cast.ToUint64E(t)
		if err != nil || u > math.MaxInt64 {
			return Null
		}
		return New(int64(u))
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return Null
	}
	return New(n)
}

// Equal reports whether a and b are both valid and identical.
func Equal(a, b ID) bool {
	return a.Valid && b.Valid && a.Int64 == b.Int64
}

// Same resolves both operands and compares them with Equal.
func Same(a, b interface{}) bool {
	return Equal(Resolve(a), Resolve(b))
}

// Matches reports whether id and other denote the same record.
func (id ID) Matches(other ID) bool {
	return Equal(id, other)
}

// String renders the identifier, or an empty string for Null.
func (id ID) String() string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Int64, 10)
}

// MarshalJSON renders a number or null.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(id.Int64, 10)), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null. Malformed values
// decode to Null rather than failing the whole payload.
func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		*id = Null
		return nil
	}
	*id = Resolve(raw)
	return nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src interface{}) error {
	*id = Resolve(src)
	return nil
}

// Value implements driver.Valuer.
func (id ID) Value() (driver.Value, error) {
	if !id.Valid {
		return nil, nil
	}
	return id.Int64, nil
}

func resolveString(raw string) ID {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Null
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return New(n)
	}
	f, err := cast.ToFloat64E(trimmed)
	if err != nil {
		return Null
	}
	return fromFloat(f)
}

func fromFloat(f float64) ID {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Null
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return Null
	}
	return New(int64(f))
}

func deref(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
