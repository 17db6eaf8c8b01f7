package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook/internal/middleware"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
	"github.com/noah-isme/sma-gradebook/pkg/response"
)

type attendanceReportService interface {
	StudentSummary(ctx context.Context, studentID identity.ID, filter models.AttendanceFilter) (*models.AttendanceSummary, error)
	Overview(ctx context.Context, req service.AttendanceOverviewRequest) (*models.AttendanceOverview, error)
	Sheet(ctx context.Context, subjectID identity.ID, date time.Time) (*models.AttendanceReconciliation, error)
}

// AttendanceHandler exposes attendance summaries and daily sheets.
type AttendanceHandler struct {
	service attendanceReportService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceReportService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// StudentSummary godoc
// @Summary Attendance summary of a student
// @Tags Attendance
// @Produce json
// @Param id path int true "Student ID"
// @Param subjectId query int false "Subject ID"
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance/summary [get]
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter, err := attendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.service.StudentSummary(c.Request.Context(), studentID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Overview godoc
// @Summary Attendance overview
// @Description Attendance summaries sorted by student name with totals.
// @Tags Attendance
// @Produce json
// @Param subjectId query int false "Subject ID"
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Param includeEmpty query bool false "Include students without records"
// @Success 200 {object} response.Envelope
// @Router /attendance/overview [get]
func (h *AttendanceHandler) Overview(c *gin.Context) {
	req, err := overviewRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil, middleware.ExtractMeta(c))
}

// Sheet godoc
// @Summary Daily attendance sheet of a subject
// @Tags Attendance
// @Produce json
// @Param id path int true "Subject ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/attendance/sheet [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	subjectID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if date == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	sheet, err := h.service.Sheet(c.Request.Context(), subjectID, *date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil, middleware.ExtractMeta(c))
}

func overviewRequest(c *gin.Context) (service.AttendanceOverviewRequest, error) {
	filter, err := attendanceFilter(c)
	if err != nil {
		return service.AttendanceOverviewRequest{}, err
	}
	includeEmpty, err := queryBool(c, "includeEmpty")
	if err != nil {
		return service.AttendanceOverviewRequest{}, err
	}
	return service.AttendanceOverviewRequest{Filter: filter, IncludeEmpty: includeEmpty}, nil
}
