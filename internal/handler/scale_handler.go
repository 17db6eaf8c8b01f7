package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/response"
)

type scaleValidator interface {
	Validate(req service.ValidateScaleRequest) (*service.ScaleValidationResult, error)
}

// ScaleHandler validates grading scales before they are saved.
type ScaleHandler struct {
	service scaleValidator
}

// NewScaleHandler constructs the handler.
func NewScaleHandler(service scaleValidator) *ScaleHandler {
	return &ScaleHandler{service: service}
}

// Validate godoc
// @Summary Validate a grading scale
// @Description Weights must be non-negative and total 100 within 0.1. Threshold keys are split out.
// @Tags Grading Scales
// @Accept json
// @Produce json
// @Param payload body service.ValidateScaleRequest true "Scale payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grading-scales/validate [post]
func (h *ScaleHandler) Validate(c *gin.Context) {
	var req service.ValidateScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.Validate(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
