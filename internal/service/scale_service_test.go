package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
)

func TestScaleServiceValidate(t *testing.T) {
	svc := NewScaleService(nil, nil)
	avg := 92.0

	result, err := svc.Validate(ValidateScaleRequest{
		Scale:   map[string]float64{"Examen": 60, "tarea": 40, "superiorMin": 95},
		Average: &avg,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 100.0, result.Total)
	assert.Equal(t, map[string]float64{"exam": 60, "homework": 40}, result.Weights)
	require.NotNil(t, result.Thresholds.SuperiorMin)
	assert.Equal(t, 95.0, *result.Thresholds.SuperiorMin)
	assert.Equal(t, models.PerformanceHigh, result.Level)
	assert.Len(t, result.Levels, 5)
	assert.Equal(t, models.DefaultEvaluationTypes, result.Types)
}

func TestScaleServiceValidateListsCustomTypes(t *testing.T) {
	svc := NewScaleService(nil, nil)

	result, err := svc.Validate(ValidateScaleRequest{Scale: map[string]float64{"exam": 50, "quiz": 30, "lab": 20}})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"exam", "homework", "project", "participation", "attendance", "lab", "quiz"}, result.Types)
	assert.Len(t, models.DefaultEvaluationTypes, 5)
}

func TestScaleServiceValidateTolerance(t *testing.T) {
	svc := NewScaleService(nil, nil)

	result, err := svc.Validate(ValidateScaleRequest{Scale: map[string]float64{"exam": 60, "homework": 39.95}})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = svc.Validate(ValidateScaleRequest{Scale: map[string]float64{"exam": 60, "homework": 39.8}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 99.8, result.Total)
}

func TestScaleServiceStrictRejectsInvalidScale(t *testing.T) {
	svc := NewScaleService(nil, nil)

	result, err := svc.Validate(ValidateScaleRequest{Scale: map[string]float64{"exam": 120, "homework": -20}, Strict: true})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Valid)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestScaleServiceRejectsMalformedPayload(t *testing.T) {
	svc := NewScaleService(nil, nil)
	tooHigh := 140.0

	cases := []ValidateScaleRequest{
		{},
		{Scale: map[string]float64{}},
		{Scale: map[string]float64{"  ": 100}},
		{Scale: map[string]float64{"exam": 100}, Average: &tooHigh},
	}
	for _, req := range cases {
		_, err := svc.Validate(req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}
