package models

import (
	"time"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// Evaluation types known to the grading scale editor.
const (
	EvaluationTypeExam          = "exam"
	EvaluationTypeHomework      = "homework"
	EvaluationTypeProject       = "project"
	EvaluationTypeParticipation = "participation"
	EvaluationTypeAttendance    = "attendance"
)

// DefaultEvaluationTypes lists the types offered when a scale is first edited.
var DefaultEvaluationTypes = []string{
	EvaluationTypeExam,
	EvaluationTypeHomework,
	EvaluationTypeProject,
	EvaluationTypeParticipation,
	EvaluationTypeAttendance,
}

// EvaluationItem is a single gradable activity of a subject.
type EvaluationItem struct {
	ID        identity.ID `db:"id" json:"id"`
	SubjectID identity.ID `db:"subject_id" json:"subject_id"`
	Type      string      `db:"type" json:"type"`
	Name      string      `db:"name" json:"name"`
	DueDate   *time.Time  `db:"due_date" json:"due_date,omitempty"`
	Weight    float64     `db:"weight" json:"weight"`
	MaxScore  *float64    `db:"max_score" json:"max_score,omitempty"`
}
