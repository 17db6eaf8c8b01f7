package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook/internal/aggregation"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// AttendanceRepository reads attendance records. Records may reference the
// student directly or only through their assignment; both shapes are
// selected and normalised before leaving the repository.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

type attendanceRow struct {
	ID                  identity.ID    `db:"id"`
	SubjectID           identity.ID    `db:"subject_id"`
	StudentID           identity.ID    `db:"student_id"`
	AssignmentID        identity.ID    `db:"student_assignment_id"`
	AssignmentStudentID identity.ID    `db:"assignment_student_id"`
	Date                time.Time      `db:"date"`
	Status              string         `db:"status"`
	Notes               sql.NullString `db:"notes"`
}

func (r attendanceRow) payload() models.AttendancePayload {
	p := models.AttendancePayload{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		StudentID: r.StudentID,
		Date:      r.Date,
		Status:    r.Status,
	}
	if r.Notes.Valid {
		notes := r.Notes.String
		p.Notes = &notes
	}
	if r.AssignmentID.Valid || r.AssignmentStudentID.Valid {
		p.StudentAssignment = &models.AttendanceAssignmentRef{ID: r.AssignmentID, StudentID: r.AssignmentStudentID}
	}
	return p
}

// List returns records matching the filter. A null studentID selects every
// student.
func (r *AttendanceRepository) List(ctx context.Context, studentID identity.ID, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if studentID.Valid {
		where = append(where, fmt.Sprintf("COALESCE(a.student_id, sa.student_id) = $%d", len(args)+1))
		args = append(args, studentID)
	}
	if filter.SubjectID.Valid {
		where = append(where, fmt.Sprintf("a.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.StartDate != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, aggregation.CalendarDay(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, fmt.Sprintf("a.date < $%d", len(args)+1))
		args = append(args, aggregation.CalendarDay(*filter.EndDate).AddDate(0, 0, 1))
	}

	query := fmt.Sprintf(`SELECT a.id, a.subject_id, a.student_id, a.student_assignment_id, sa.student_id AS assignment_student_id,
        a.date, a.status, a.notes
        FROM attendance a LEFT JOIN student_assignments sa ON sa.id = a.student_assignment_id
        WHERE %s ORDER BY a.date, a.id`, strings.Join(where, " AND "))

	var rows []attendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	payloads := make([]models.AttendancePayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, row.payload())
	}
	return models.NormalizeAttendance(payloads), nil
}

// ListBySubjectAndDate returns the records of one subject on one calendar day.
func (r *AttendanceRepository) ListBySubjectAndDate(ctx context.Context, subjectID identity.ID, date time.Time) ([]models.AttendanceRecord, error) {
	return r.List(ctx, identity.Null, models.AttendanceFilter{SubjectID: subjectID, StartDate: &date, EndDate: &date})
}
