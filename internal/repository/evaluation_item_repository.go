package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

const evaluationItemColumns = "id, subject_id, COALESCE(type, '') AS type, name, due_date, COALESCE(weight, 0) AS weight, max_score"

// EvaluationItemRepository reads gradable activities.
type EvaluationItemRepository struct {
	db *sqlx.DB
}

// NewEvaluationItemRepository constructs the repository.
func NewEvaluationItemRepository(db *sqlx.DB) *EvaluationItemRepository {
	return &EvaluationItemRepository{db: db}
}

// ListBySubject returns the items of a subject ordered by due date.
func (r *EvaluationItemRepository) ListBySubject(ctx context.Context, subjectID identity.ID) ([]models.EvaluationItem, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluation_items WHERE subject_id = $1 ORDER BY due_date NULLS LAST, id", evaluationItemColumns)
	var items []models.EvaluationItem
	if err := r.db.SelectContext(ctx, &items, query, subjectID); err != nil {
		return nil, fmt.Errorf("list evaluation items: %w", err)
	}
	return items, nil
}

// FindByID returns one item. sql.ErrNoRows is returned unwrapped.
func (r *EvaluationItemRepository) FindByID(ctx context.Context, id identity.ID) (*models.EvaluationItem, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluation_items WHERE id = $1", evaluationItemColumns)
	var item models.EvaluationItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}
