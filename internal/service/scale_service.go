package service

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook/internal/aggregation"
	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
)

// ValidateScaleRequest carries a grading scale as entered in the scale editor. The
// scale may mix type weights with the performance threshold keys.
type ValidateScaleRequest struct {
	Scale map[string]float64 `json:"scale" validate:"required,min=1,scalekeys"`
	// Average optionally previews the performance level of a score.
	Average *float64 `json:"average,omitempty" validate:"omitempty,gte=0,lte=100"`
	// Strict turns an invalid scale into an error.
	Strict bool `json:"strict,omitempty"`
}

// ScaleValidationResult reports whether a scale can drive weighted averages.
type ScaleValidationResult struct {
	models.ScaleValidation
	Weights    map[string]float64           `json:"weights"`
	Thresholds models.PerformanceThresholds `json:"thresholds"`
	Levels     []string                     `json:"levels"`
	Level      string                       `json:"level,omitempty"`
	// Types lists the evaluation types an editor offers: the defaults,
	// then any other type the scale weights, sorted.
	Types []string `json:"types"`
}

// ScaleService validates grading scales.
type ScaleService struct {
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScaleService constructs a ScaleService.
func NewScaleService(validate *validator.Validate, logger *zap.Logger) *ScaleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ScaleService{validator: validate, logger: logger}
	_ = svc.validator.RegisterValidation("scalekeys", func(fl validator.FieldLevel) bool {
		for _, key := range fl.Field().MapKeys() {
			if strings.TrimSpace(key.String()) == "" {
				return false
			}
		}
		return true
	})
	return svc
}

// Validate normalises the scale and checks its weights.
func (s *ScaleService) Validate(req ValidateScaleRequest) (*ScaleValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	weights, thresholds := aggregation.NormalizeScale(req.Scale)
	result := &ScaleValidationResult{
		ScaleValidation: aggregation.ValidateScale(weights),
		Weights:         weights,
		Thresholds:      thresholds,
		Levels:          aggregation.PerformanceLevels,
		Types:           evaluationTypes(weights),
	}
	if req.Average != nil {
		result.Level = aggregation.PerformanceLevel(*req.Average, thresholds)
	}
	if !result.Valid {
		s.logger.Debug("grading scale rejected", zap.Float64("total", result.Total), zap.Int("types", len(weights)))
		if req.Strict {
			return result, appErrors.Clone(appErrors.ErrInvalidWeights, "")
		}
	}
	return result, nil
}

func evaluationTypes(weights map[string]float64) []string {
	types := append([]string(nil), models.DefaultEvaluationTypes...)
	known := make(map[string]struct{}, len(types))
	for _, t := range types {
		known[t] = struct{}{}
	}
	var extra []string
	for t := range weights {
		if _, ok := known[t]; !ok {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(types, extra...)
}
