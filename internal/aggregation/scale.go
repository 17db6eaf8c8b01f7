package aggregation

import (
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/sma-gradebook/internal/models"
)

// ScaleTolerance is the allowed distance between the weight total and 100.
// The bound itself is excluded.
const ScaleTolerance = 0.1

// scaleEpsilon absorbs binary rounding so totals such as 99.9 land on the
// tolerance bound.
const scaleEpsilon = 1e-9

// Threshold keys that may be stored alongside weights in a grading scale.
const (
	ThresholdSuperiorKey = "superiorMin"
	ThresholdHighKey     = "highMin"
	ThresholdBasicKey    = "basicMin"
	ThresholdLowKey      = "lowMin"
)

// Default performance cutoffs, used when a subject defines none.
const (
	DefaultSuperiorMin = 90.0
	DefaultHighMin     = 80.0
	DefaultBasicMin    = 70.0
	DefaultLowMin      = 60.0
)

// OtherEvaluationType buckets items without a type.
const OtherEvaluationType = "other"

var typeAliases = map[string]string{
	"homework":      models.EvaluationTypeHomework,
	"homeworks":     models.EvaluationTypeHomework,
	"task":          models.EvaluationTypeHomework,
	"tasks":         models.EvaluationTypeHomework,
	"tarea":         models.EvaluationTypeHomework,
	"tareas":        models.EvaluationTypeHomework,
	"exam":          models.EvaluationTypeExam,
	"exams":         models.EvaluationTypeExam,
	"examen":        models.EvaluationTypeExam,
	"examenes":      models.EvaluationTypeExam,
	"exámenes":      models.EvaluationTypeExam,
	"project":       models.EvaluationTypeProject,
	"projects":      models.EvaluationTypeProject,
	"proyecto":      models.EvaluationTypeProject,
	"proyectos":     models.EvaluationTypeProject,
	"participation": models.EvaluationTypeParticipation,
	"participación": models.EvaluationTypeParticipation,
	"participacion": models.EvaluationTypeParticipation,
	"attendance":    models.EvaluationTypeAttendance,
	"asistencia":    models.EvaluationTypeAttendance,
}

// CanonicalType maps a free-form evaluation type to its bucket key. Matching
// is case-insensitive; unknown types keep their lower-cased name.
func CanonicalType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return OtherEvaluationType
	}
	if canonical, ok := typeAliases[key]; ok {
		return canonical
	}
	return key
}

// ValidateScale checks that every weight is non-negative and that the total
// is within ScaleTolerance of 100. An empty scale is invalid. The input is
// not modified.
func ValidateScale(scale map[string]float64) models.ScaleValidation {
	if len(scale) == 0 {
		return models.ScaleValidation{}
	}
	keys := make([]string, 0, len(scale))
	for key := range scale {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	valid := true
	var total float64
	for _, key := range keys {
		weight := scale[key]
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			valid = false
			continue
		}
		total += weight
	}
	if math.Abs(total-100) >= ScaleTolerance-scaleEpsilon {
		valid = false
	}
	return models.ScaleValidation{Valid: valid, Total: math.Round(total*100) / 100}
}

// NormalizeScale splits performance thresholds out of a stored grading scale
// and folds weight keys into canonical type buckets. Weights of aliases that
// land in the same bucket are summed.
func NormalizeScale(raw map[string]float64) (map[string]float64, models.PerformanceThresholds) {
	var thresholds models.PerformanceThresholds
	weights := make(map[string]float64, len(raw))
	for key, value := range raw {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case strings.ToLower(ThresholdSuperiorKey):
			thresholds.SuperiorMin = floatPtr(value)
		case strings.ToLower(ThresholdHighKey):
			thresholds.HighMin = floatPtr(value)
		case strings.ToLower(ThresholdBasicKey):
			thresholds.BasicMin = floatPtr(value)
		case strings.ToLower(ThresholdLowKey):
			thresholds.LowMin = floatPtr(value)
		default:
			weights[CanonicalType(key)] += value
		}
	}
	return weights, thresholds
}

// PerformanceLevel classifies an average. Thresholds that are not defined use
// the default cutoffs. Comparisons are inclusive, highest level first.
func PerformanceLevel(average float64, thresholds models.PerformanceThresholds) string {
	switch {
	case average >= thresholdOr(thresholds.SuperiorMin, DefaultSuperiorMin):
		return models.PerformanceSuperior
	case average >= thresholdOr(thresholds.HighMin, DefaultHighMin):
		return models.PerformanceHigh
	case average >= thresholdOr(thresholds.BasicMin, DefaultBasicMin):
		return models.PerformanceBasic
	case average >= thresholdOr(thresholds.LowMin, DefaultLowMin):
		return models.PerformanceLow
	default:
		return models.PerformanceInsufficient
	}
}

// PerformanceLevels lists labels from highest to lowest.
var PerformanceLevels = []string{
	models.PerformanceSuperior,
	models.PerformanceHigh,
	models.PerformanceBasic,
	models.PerformanceLow,
	models.PerformanceInsufficient,
}

func thresholdOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
