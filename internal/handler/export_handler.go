package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
	"github.com/noah-isme/sma-gradebook/pkg/response"
)

type exportService interface {
	ExportSubjectSummary(ctx context.Context, subjectID identity.ID, mode, format string) (*service.ExportResult, error)
	ExportAttendanceOverview(ctx context.Context, req service.AttendanceOverviewRequest, format string) (*service.ExportResult, error)
	Open(token string) (*service.ExportFile, error)
}

// ExportRequest selects the export file format.
type ExportRequest struct {
	Format string `json:"format" binding:"omitempty,oneof=csv pdf CSV PDF"`
	Mode   string `json:"mode" binding:"omitempty,oneof=simple weighted"`
}

// ExportHandler renders reports to downloadable files.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// ExportSubjectSummary godoc
// @Summary Export a subject grade summary
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path int true "Subject ID"
// @Param payload body ExportRequest false "Export options"
// @Success 201 {object} response.Envelope
// @Router /subjects/{id}/grades/export [post]
func (h *ExportHandler) ExportSubjectSummary(c *gin.Context) {
	subjectID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := bindExportRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ExportSubjectSummary(c.Request.Context(), subjectID, req.Mode, req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// ExportAttendanceOverview godoc
// @Summary Export an attendance overview
// @Tags Exports
// @Accept json
// @Produce json
// @Param subjectId query int false "Subject ID"
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Param includeEmpty query bool false "Include students without records"
// @Param payload body ExportRequest false "Export options"
// @Success 201 {object} response.Envelope
// @Router /attendance/overview/export [post]
func (h *ExportHandler) ExportAttendanceOverview(c *gin.Context) {
	overview, err := overviewRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := bindExportRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ExportAttendanceOverview(c.Request.Context(), overview, req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Download godoc
// @Summary Download an exported file
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func bindExportRequest(c *gin.Context) (ExportRequest, error) {
	var req ExportRequest
	if c.Request.ContentLength == 0 {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return req, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return req, nil
}
