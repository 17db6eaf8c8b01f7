package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

func TestStudentAssignmentRepositoryListByGroup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentAssignmentRepository(db)

	left := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "group_id", "status", "assigned_at", "unassigned_at"}).
		AddRow(int64(500), int64(1), int64(10), "active", nil, nil).
		AddRow(int64(501), int64(2), int64(10), "", nil, left)
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_assignments WHERE group_id = $1 ORDER BY id")).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	assignments, err := repo.ListByGroup(context.Background(), identity.New(10))
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.True(t, assignments[0].Active())
	assert.False(t, assignments[1].Active())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryFindByIDDecodesScale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"id", "group_id", "name", "status", "grading_scale"}).
		AddRow(int64(1), int64(10), "Matemáticas", "active", []byte(`{"exam":60,"homework":40,"superiorMin":95}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	subject, err := repo.FindByID(context.Background(), identity.New(1))
	require.NoError(t, err)
	assert.Equal(t, identity.New(10), subject.GroupID)
	assert.Equal(t, models.GradingScale{"exam": 60, "homework": 40, "superiorMin": 95}, subject.GradingScale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationItemRepositoryListBySubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvaluationItemRepository(db)

	rows := sqlmock.NewRows([]string{"id", "subject_id", "type", "name", "due_date", "weight", "max_score"}).
		AddRow(int64(20), int64(1), "exam", "Parcial", nil, 0.0, 100.0).
		AddRow(int64(21), int64(1), "Tarea", "Ejercicios", nil, 0.0, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluation_items WHERE subject_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	items, err := repo.ListBySubject(context.Background(), identity.New(1))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].MaxScore)
	assert.Nil(t, items[1].MaxScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListBySubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "evaluation_item_id", "student_assignment_id", "score", "feedback"}).
		AddRow(int64(1), int64(20), int64(500), 80.0, "").
		AddRow(int64(2), int64(20), nil, nil, "")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN evaluation_items ei ON ei.id = g.evaluation_item_id")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	grades, err := repo.ListBySubject(context.Background(), identity.New(1))
	require.NoError(t, err)
	require.Len(t, grades, 2)
	require.NotNil(t, grades[0].Score)
	assert.Equal(t, 80.0, *grades[0].Score)
	assert.False(t, grades[1].StudentAssignmentID.Valid)
	assert.Nil(t, grades[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListByEvaluationItemError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM grades WHERE evaluation_item_id = $1")).
		WithArgs(int64(20)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListByEvaluationItem(context.Background(), identity.New(20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list grades by evaluation item")
}

func TestAttendanceRepositoryListResolvesStudentThroughAssignment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "subject_id", "student_id", "student_assignment_id", "assignment_student_id", "date", "status", "notes"}).
		AddRow(int64(1), int64(1), int64(7), nil, nil, date, "present", nil).
		AddRow(int64(2), int64(1), nil, int64(500), int64(7), date, "LATE", "bus")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND COALESCE(a.student_id, sa.student_id) = $1 AND a.subject_id = $2 AND a.date >= $3 AND a.date < $4")).
		WithArgs(int64(7), int64(1), date, date.AddDate(0, 0, 1)).
		WillReturnRows(rows)

	end := date.Add(10 * time.Hour)
	records, err := repo.List(context.Background(), identity.New(7), models.AttendanceFilter{SubjectID: identity.New(1), StartDate: &date, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, identity.New(7), records[1].StudentID)
	assert.Equal(t, models.AttendanceStatusLate, records[1].Status)
	assert.Equal(t, "bus", records[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListBySubjectAndDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.subject_id = $1 AND a.date >= $2 AND a.date < $3")).
		WithArgs(int64(1), date, date.AddDate(0, 0, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "student_id", "student_assignment_id", "assignment_student_id", "date", "status", "notes"}))

	records, err := repo.ListBySubjectAndDate(context.Background(), identity.New(1), date)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
