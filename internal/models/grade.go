package models

import "github.com/noah-isme/sma-gradebook/pkg/identity"

// Grade is a score for one evaluation item. It references the student
// assignment, never the student directly.
type Grade struct {
	ID                  identity.ID `db:"id" json:"id"`
	EvaluationItemID    identity.ID `db:"evaluation_item_id" json:"evaluation_item_id"`
	StudentAssignmentID identity.ID `db:"student_assignment_id" json:"student_assignment_id"`
	Score               *float64    `db:"score" json:"score"`
	Feedback            string      `db:"feedback" json:"feedback,omitempty"`
}
