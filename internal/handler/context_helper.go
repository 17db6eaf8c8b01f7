package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/noah-isme/sma-gradebook/internal/aggregation"
	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

func pathID(c *gin.Context, name string) (identity.ID, error) {
	id := identity.Resolve(c.Param(name))
	if !id.Valid {
		return identity.Null, appErrors.Clone(appErrors.ErrValidation, name+" must be a numeric identifier")
	}
	return id, nil
}

func queryDate(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(aggregation.DateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must use YYYY-MM-DD")
	}
	return &parsed, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, name+" must be a boolean")
	}
	return value, nil
}

// attendanceFilter reads subjectId, startDate and endDate.
func attendanceFilter(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	if raw := strings.TrimSpace(c.Query("subjectId")); raw != "" {
		filter.SubjectID = identity.Resolve(raw)
		if !filter.SubjectID.Valid {
			return filter, appErrors.Clone(appErrors.ErrValidation, "subjectId must be a numeric identifier")
		}
	}
	start, err := queryDate(c, "startDate")
	if err != nil {
		return filter, err
	}
	end, err := queryDate(c, "endDate")
	if err != nil {
		return filter, err
	}
	filter.StartDate, filter.EndDate = start, end
	return filter, nil
}
