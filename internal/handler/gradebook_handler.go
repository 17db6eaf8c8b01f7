package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook/internal/middleware"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
	"github.com/noah-isme/sma-gradebook/pkg/response"
)

type gradebookService interface {
	SubjectSummary(ctx context.Context, subjectID identity.ID, mode string) (*models.SubjectGradeReport, bool, error)
	GradingSheet(ctx context.Context, itemID identity.ID) (*models.GradeReconciliation, error)
}

type refreshScheduler interface {
	Schedule(subjectID identity.ID) (*service.RefreshTicket, error)
}

// GradebookHandler exposes subject grade reports and grading sheets.
type GradebookHandler struct {
	service gradebookService
	refresh refreshScheduler
}

// NewGradebookHandler constructs the handler.
func NewGradebookHandler(service gradebookService, refresh refreshScheduler) *GradebookHandler {
	return &GradebookHandler{service: service, refresh: refresh}
}

// SubjectSummary godoc
// @Summary Subject grade summary
// @Description Per-student averages, performance levels and ranks for the active roster of a subject.
// @Tags Gradebook
// @Produce json
// @Param id path int true "Subject ID"
// @Param mode query string false "Average mode" Enums(simple, weighted)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/grades/summary [get]
func (h *GradebookHandler) SubjectSummary(c *gin.Context) {
	subjectID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	mode := strings.ToLower(strings.TrimSpace(c.Query("mode")))
	if mode != "" && mode != string(models.AverageModeSimple) && mode != string(models.AverageModeWeighted) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "mode must be simple or weighted"))
		return
	}
	report, cacheHit, err := h.service.SubjectSummary(c.Request.Context(), subjectID, mode)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	if report.ScaleFallback {
		middleware.SetMeta(c, "scale_fallback", true)
	}
	if report.Degraded {
		middleware.SetMeta(c, "degraded", true)
	}
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// RefreshSubjectSummary godoc
// @Summary Refresh a subject grade summary
// @Description Queues recomputation of every cached summary of the subject.
// @Tags Gradebook
// @Produce json
// @Param id path int true "Subject ID"
// @Success 202 {object} response.Envelope
// @Router /subjects/{id}/grades/summary/refresh [post]
func (h *GradebookHandler) RefreshSubjectSummary(c *gin.Context) {
	if h.refresh == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "refresh queue not running"))
		return
	}
	subjectID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	ticket, err := h.refresh.Schedule(subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, ticket)
}

// GradingSheet godoc
// @Summary Grading sheet of an evaluation item
// @Description One row per active roster entry with its grade status, plus orphan grades and stats.
// @Tags Gradebook
// @Produce json
// @Param id path int true "Evaluation item ID"
// @Success 200 {object} response.Envelope
// @Router /evaluation-items/{id}/grading-sheet [get]
func (h *GradebookHandler) GradingSheet(c *gin.Context) {
	itemID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := h.service.GradingSheet(c.Request.Context(), itemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil, middleware.ExtractMeta(c))
}
