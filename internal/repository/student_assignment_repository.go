package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// StudentAssignmentRepository reads group enrollments.
type StudentAssignmentRepository struct {
	db *sqlx.DB
}

// NewStudentAssignmentRepository constructs the repository.
func NewStudentAssignmentRepository(db *sqlx.DB) *StudentAssignmentRepository {
	return &StudentAssignmentRepository{db: db}
}

// ListByGroup returns all assignments of a group, active or not. Callers
// decide which ones make up the roster.
func (r *StudentAssignmentRepository) ListByGroup(ctx context.Context, groupID identity.ID) ([]models.StudentAssignment, error) {
	const query = `SELECT id, student_id, group_id, COALESCE(status, '') AS status, assigned_at, unassigned_at
        FROM student_assignments WHERE group_id = $1 ORDER BY id`
	var assignments []models.StudentAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, groupID); err != nil {
		return nil, fmt.Errorf("list student assignments: %w", err)
	}
	return assignments, nil
}
