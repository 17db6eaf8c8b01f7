package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// SubjectRepository reads subjects and their grading scales.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID returns a subject by id. sql.ErrNoRows is returned unwrapped.
func (r *SubjectRepository) FindByID(ctx context.Context, id identity.ID) (*models.Subject, error) {
	const query = `SELECT id, group_id, name, COALESCE(status, '') AS status, grading_scale FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}
