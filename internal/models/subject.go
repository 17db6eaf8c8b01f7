package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// GradingScale maps an evaluation type to its weight percentage. Stored as JSONB.
type GradingScale map[string]float64

// Scan implements sql.Scanner for JSON encoded scales.
func (g *GradingScale) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*g = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("grading scale: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*g = nil
		return nil
	}
	scale := GradingScale{}
	if err := json.Unmarshal(raw, &scale); err != nil {
		return fmt.Errorf("grading scale: %w", err)
	}
	*g = scale
	return nil
}

// Value implements driver.Valuer.
func (g GradingScale) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

// Subject represents a subject taught to a single group.
type Subject struct {
	ID           identity.ID  `db:"id" json:"id"`
	GroupID      identity.ID  `db:"group_id" json:"group_id"`
	Name         string       `db:"name" json:"name"`
	Status       string       `db:"status" json:"status"`
	GradingScale GradingScale `db:"grading_scale" json:"grading_scale,omitempty"`
}
