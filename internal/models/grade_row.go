package models

import (
	"errors"
	"math"
)

// NotSubmittedFeedback is the canned feedback written when a row is marked as
// not submitted.
const NotSubmittedFeedback = "No entregado"

// ErrNegativeScore is returned when a negative or non-finite score is saved.
var ErrNegativeScore = errors.New("score must be a non-negative number")

// GradeStatusFor derives the row status from a stored score. An explicit zero
// is the not-submitted marker.
func GradeStatusFor(score *float64) GradeStatus {
	switch {
	case score == nil:
		return GradeStatusPending
	case *score > 0:
		return GradeStatusGraded
	case *score == 0:
		return GradeStatusNotSubmitted
	default:
		return GradeStatusPending
	}
}

// Save records a score on the row.
func (r GradeRow) Save(score float64) (GradeRow, error) {
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return r, ErrNegativeScore
	}
	r.Score = &score
	r.Status = GradeStatusFor(r.Score)
	return r, nil
}

// MarkNotSubmitted forces the explicit zero marker and canned feedback.
func (r GradeRow) MarkNotSubmitted() GradeRow {
	zero := 0.0
	r.Score = &zero
	r.Feedback = NotSubmittedFeedback
	r.Status = GradeStatusNotSubmitted
	return r
}

// UnmarkNotSubmitted reverses MarkNotSubmitted. Rows in any other state are
// returned unchanged.
func (r GradeRow) UnmarkNotSubmitted() GradeRow {
	if r.Status != GradeStatusNotSubmitted {
		return r
	}
	r.Score = nil
	r.Feedback = ""
	r.Status = GradeStatusPending
	return r
}
