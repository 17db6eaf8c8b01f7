package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// GradeRepository reads grade rows. Rows are ordered by id so that the
// latest write of a duplicated pair comes last.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListBySubject returns every grade recorded against the subject's items.
func (r *GradeRepository) ListBySubject(ctx context.Context, subjectID identity.ID) ([]models.Grade, error) {
	const query = `SELECT g.id, g.evaluation_item_id, g.student_assignment_id, g.score, COALESCE(g.feedback, '') AS feedback
        FROM grades g JOIN evaluation_items ei ON ei.id = g.evaluation_item_id
        WHERE ei.subject_id = $1 ORDER BY g.id`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grades by subject: %w", err)
	}
	return grades, nil
}

// ListByEvaluationItem returns the grades of one item.
func (r *GradeRepository) ListByEvaluationItem(ctx context.Context, itemID identity.ID) ([]models.Grade, error) {
	const query = `SELECT id, evaluation_item_id, student_assignment_id, score, COALESCE(feedback, '') AS feedback
        FROM grades WHERE evaluation_item_id = $1 ORDER BY id`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, itemID); err != nil {
		return nil, fmt.Errorf("list grades by evaluation item: %w", err)
	}
	return grades, nil
}
