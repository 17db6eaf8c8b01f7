package models

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// AssignmentStatus represents the enrollment state of a student in a group.
type AssignmentStatus string

// Possible assignment statuses.
const (
	AssignmentStatusActive   AssignmentStatus = "active"
	AssignmentStatusInactive AssignmentStatus = "inactive"
)

// StudentAssignment links a student to a group. Its ID is the key grades are
// recorded against.
type StudentAssignment struct {
	ID           identity.ID      `db:"id" json:"id"`
	StudentID    identity.ID      `db:"student_id" json:"student_id"`
	GroupID      identity.ID      `db:"group_id" json:"group_id"`
	Status       AssignmentStatus `db:"status" json:"status,omitempty"`
	AssignedAt   *time.Time       `db:"assigned_at" json:"assigned_at,omitempty"`
	UnassignedAt *time.Time       `db:"unassigned_at" json:"unassigned_at,omitempty"`
}

// Active reports whether the assignment is current. Both representations in
// the data are honoured: an unassignment timestamp, or an explicit status
// other than active, makes the assignment inactive.
func (a StudentAssignment) Active() bool {
	if a.UnassignedAt != nil {
		return false
	}
	status := strings.TrimSpace(string(a.Status))
	if status == "" {
		return true
	}
	return strings.EqualFold(status, string(AssignmentStatusActive))
}
