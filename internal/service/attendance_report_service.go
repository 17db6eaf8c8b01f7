package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook/internal/aggregation"
	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

type attendanceReader interface {
	List(ctx context.Context, studentID identity.ID, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	ListBySubjectAndDate(ctx context.Context, subjectID identity.ID, date time.Time) ([]models.AttendanceRecord, error)
}

type studentDirectory interface {
	studentReader
	List(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id identity.ID) (*models.Student, error)
}

// AttendanceOverviewRequest selects the records and students of an overview.
type AttendanceOverviewRequest struct {
	Filter       models.AttendanceFilter
	IncludeEmpty bool
}

// AttendanceReportServiceParams groups constructor dependencies.
type AttendanceReportServiceParams struct {
	Attendance   attendanceReader
	Students     studentDirectory
	Subjects     subjectReader
	Assignments  rosterReader
	Metrics      *MetricsService
	Logger       *zap.Logger
	FetchTimeout time.Duration
}

// AttendanceReportService builds attendance summaries and daily sheets.
type AttendanceReportService struct {
	attendance   attendanceReader
	students     studentDirectory
	subjects     subjectReader
	assignments  rosterReader
	metrics      *MetricsService
	logger       *zap.Logger
	fetchTimeout time.Duration
}

// NewAttendanceReportService constructs the service.
func NewAttendanceReportService(params AttendanceReportServiceParams) *AttendanceReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := params.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AttendanceReportService{
		attendance:   params.Attendance,
		students:     params.Students,
		subjects:     params.Subjects,
		assignments:  params.Assignments,
		metrics:      params.Metrics,
		logger:       logger,
		fetchTimeout: timeout,
	}
}

// StudentSummary counts the attendance of one student.
func (s *AttendanceReportService) StudentSummary(ctx context.Context, studentID identity.ID, filter models.AttendanceFilter) (*models.AttendanceSummary, error) {
	if !studentID.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student id")
	}
	if err := validateRange(filter); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	var records []models.AttendanceRecord
	g := newGatherer(ctx, s.fetchTimeout, s.logger, s.metrics, zap.String("student_id", studentID.String()))
	gather(g, "attendance", &records, func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return s.attendance.List(ctx, studentID, filter)
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "attendance request cancelled")
	}

	start := time.Now()
	summary := aggregation.SummarizeAttendance(studentID, records, filter)
	s.metrics.ObserveAggregation("attendance_summary", time.Since(start))
	summary.StudentName = student.DisplayName()
	return &summary, nil
}

// Overview summarises attendance for every student. When the filter names a
// subject only the students of its group are listed.
func (s *AttendanceReportService) Overview(ctx context.Context, req AttendanceOverviewRequest) (*models.AttendanceOverview, error) {
	if err := validateRange(req.Filter); err != nil {
		return nil, err
	}
	listStudents := s.students.List
	if req.Filter.SubjectID.Valid {
		subject, err := s.findSubject(ctx, req.Filter.SubjectID)
		if err != nil {
			return nil, err
		}
		listStudents = func(ctx context.Context) ([]models.Student, error) {
			return s.students.ListByGroup(ctx, subject.GroupID)
		}
	}

	var (
		students []models.Student
		records  []models.AttendanceRecord
	)
	g := newGatherer(ctx, s.fetchTimeout, s.logger, s.metrics, zap.String("subject_id", req.Filter.SubjectID.String()))
	gather(g, "students", &students, listStudents)
	gather(g, "attendance", &records, func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return s.attendance.List(ctx, identity.Null, req.Filter)
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "attendance request cancelled")
	}

	start := time.Now()
	overview := aggregation.SummarizeRosterAttendance(students, records, req.Filter, aggregation.RosterOptions{IncludeEmpty: req.IncludeEmpty})
	s.metrics.ObserveAggregation("attendance_overview", time.Since(start))
	return &overview, nil
}

// Sheet reconciles the roster of a subject with its attendance on date.
func (s *AttendanceReportService) Sheet(ctx context.Context, subjectID identity.ID, date time.Time) (*models.AttendanceReconciliation, error) {
	if !subjectID.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}
	if date.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	subject, err := s.findSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var (
		roster   []models.StudentAssignment
		students []models.Student
		records  []models.AttendanceRecord
	)
	g := newGatherer(ctx, s.fetchTimeout, s.logger, s.metrics, zap.String("subject_id", subjectID.String()))
	gather(g, "student_assignments", &roster, func(ctx context.Context) ([]models.StudentAssignment, error) {
		return s.assignments.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "students", &students, func(ctx context.Context) ([]models.Student, error) {
		return s.students.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "attendance", &records, func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return s.attendance.ListBySubjectAndDate(ctx, subjectID, date)
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "attendance request cancelled")
	}

	start := time.Now()
	sheet := aggregation.ReconcileAttendance(aggregation.ActiveRoster(roster, subject.GroupID), students, records, subjectID, date)
	s.metrics.ObserveAggregation("attendance_sheet", time.Since(start))
	if n := len(sheet.Orphans); n > 0 {
		s.metrics.AddOrphans("attendance", n)
		s.logger.Warn("attendance records without an active roster entry",
			zap.String("subject_id", subjectID.String()),
			zap.String("date", sheet.Date),
			zap.Int("count", n),
		)
	}
	return &sheet, nil
}

func (s *AttendanceReportService) findSubject(ctx context.Context, subjectID identity.ID) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

func validateRange(filter models.AttendanceFilter) error {
	if filter.StartDate != nil && filter.EndDate != nil &&
		aggregation.CalendarDay(*filter.StartDate).After(aggregation.CalendarDay(*filter.EndDate)) {
		return appErrors.Clone(appErrors.ErrValidation, "startDate must not be after endDate")
	}
	return nil
}
