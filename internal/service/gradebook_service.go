package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook/internal/aggregation"
	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

type subjectReader interface {
	FindByID(ctx context.Context, id identity.ID) (*models.Subject, error)
}

type rosterReader interface {
	ListByGroup(ctx context.Context, groupID identity.ID) ([]models.StudentAssignment, error)
}

type studentReader interface {
	ListByGroup(ctx context.Context, groupID identity.ID) ([]models.Student, error)
}

type evaluationItemReader interface {
	ListBySubject(ctx context.Context, subjectID identity.ID) ([]models.EvaluationItem, error)
	FindByID(ctx context.Context, id identity.ID) (*models.EvaluationItem, error)
}

type gradeReader interface {
	ListBySubject(ctx context.Context, subjectID identity.ID) ([]models.Grade, error)
	ListByEvaluationItem(ctx context.Context, itemID identity.ID) ([]models.Grade, error)
}

// GradebookServiceConfig tunes grade aggregation.
type GradebookServiceConfig struct {
	DefaultMode  models.AverageMode
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// GradebookServiceParams groups constructor dependencies.
type GradebookServiceParams struct {
	Subjects    subjectReader
	Assignments rosterReader
	Students    studentReader
	Items       evaluationItemReader
	Grades      gradeReader
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      GradebookServiceConfig
}

// GradebookService assembles subject grade reports and grading sheets.
type GradebookService struct {
	subjects    subjectReader
	assignments rosterReader
	students    studentReader
	items       evaluationItemReader
	grades      gradeReader
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
	cfg         GradebookServiceConfig
}

// NewGradebookService constructs a GradebookService.
func NewGradebookService(params GradebookServiceParams) *GradebookService {
	cfg := params.Config
	cfg.DefaultMode = models.ParseAverageMode(string(cfg.DefaultMode))
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{
		subjects:    params.Subjects,
		assignments: params.Assignments,
		students:    params.Students,
		items:       params.Items,
		grades:      params.Grades,
		cache:       params.Cache,
		metrics:     params.Metrics,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// SubjectSummary returns the grade report of a subject and whether it was
// served from cache. An empty mode uses the configured default.
func (s *GradebookService) SubjectSummary(ctx context.Context, subjectID identity.ID, mode string) (*models.SubjectGradeReport, bool, error) {
	if !subjectID.Valid {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}
	resolved := s.resolveMode(mode)
	key := subjectCacheKey(subjectID, resolved)

	var cached models.SubjectGradeReport
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	report, err := s.buildSubjectSummary(ctx, subjectID, resolved)
	if err != nil {
		return nil, false, err
	}
	if report.Degraded {
		s.logger.Debug("degraded subject summary not cached", zap.String("key", key))
		return report, false, nil
	}
	_ = s.cache.Set(ctx, key, report, s.cfg.CacheTTL)
	return report, false, nil
}

// RefreshSubjectSummary drops every cached report of the subject and
// recomputes the one for the default mode.
func (s *GradebookService) RefreshSubjectSummary(ctx context.Context, subjectID identity.ID) (*models.SubjectGradeReport, error) {
	if err := s.InvalidateSubject(ctx, subjectID); err != nil {
		s.logger.Warn("subject summary invalidation failed", zap.String("subject_id", subjectID.String()), zap.Error(err))
	}
	report, _, err := s.SubjectSummary(ctx, subjectID, "")
	return report, err
}

// InvalidateSubject removes the cached reports of a subject for every mode.
func (s *GradebookService) InvalidateSubject(ctx context.Context, subjectID identity.ID) error {
	if !subjectID.Valid {
		return appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}
	return s.cache.Invalidate(ctx, fmt.Sprintf("gradebook:subject:%s:*", subjectID))
}

// GradingSheet reconciles the roster of an evaluation item's subject with
// the grades recorded for that item.
func (s *GradebookService) GradingSheet(ctx context.Context, itemID identity.ID) (*models.GradeReconciliation, error) {
	if !itemID.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid evaluation item id")
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation item")
	}
	subject, err := s.loadSubject(ctx, item.SubjectID)
	if err != nil {
		return nil, err
	}

	var (
		roster   []models.StudentAssignment
		students []models.Student
		grades   []models.Grade
	)
	g := newGatherer(ctx, s.cfg.FetchTimeout, s.logger, s.metrics, zap.String("evaluation_item_id", itemID.String()))
	gather(g, "student_assignments", &roster, func(ctx context.Context) ([]models.StudentAssignment, error) {
		return s.assignments.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "students", &students, func(ctx context.Context) ([]models.Student, error) {
		return s.students.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "grades", &grades, func(ctx context.Context) ([]models.Grade, error) {
		return s.grades.ListByEvaluationItem(ctx, itemID)
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "grading sheet request cancelled")
	}

	start := time.Now()
	sheet := aggregation.ReconcileGrades(aggregation.ActiveRoster(roster, subject.GroupID), students, grades, itemID)
	s.metrics.ObserveAggregation("grading_sheet", time.Since(start))
	if n := len(sheet.Orphans); n > 0 {
		s.metrics.AddOrphans("grade", n)
		s.logger.Warn("grades without an active roster entry",
			zap.String("evaluation_item_id", itemID.String()),
			zap.Int("count", n),
		)
	}
	return &sheet, nil
}

func (s *GradebookService) buildSubjectSummary(ctx context.Context, subjectID identity.ID, mode models.AverageMode) (*models.SubjectGradeReport, error) {
	subject, err := s.loadSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	in := aggregation.SubjectGradeInput{Subject: *subject, Mode: mode, GeneratedAt: s.now().UTC()}
	g := newGatherer(ctx, s.cfg.FetchTimeout, s.logger, s.metrics, zap.String("subject_id", subjectID.String()))
	gather(g, "students", &in.Students, func(ctx context.Context) ([]models.Student, error) {
		return s.students.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "student_assignments", &in.Assignments, func(ctx context.Context) ([]models.StudentAssignment, error) {
		return s.assignments.ListByGroup(ctx, subject.GroupID)
	})
	gather(g, "evaluation_items", &in.EvaluationItems, func(ctx context.Context) ([]models.EvaluationItem, error) {
		return s.items.ListBySubject(ctx, subjectID)
	})
	gather(g, "grades", &in.Grades, func(ctx context.Context) ([]models.Grade, error) {
		return s.grades.ListBySubject(ctx, subjectID)
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "subject summary request cancelled")
	}

	start := time.Now()
	report := aggregation.AggregateSubjectGrades(in)
	report.Degraded = g.Degraded()
	s.metrics.ObserveAggregation("subject_summary", time.Since(start))

	if report.ScaleFallback {
		s.metrics.IncScaleFallback()
		s.logger.Warn("grading scale invalid, using simple average",
			zap.String("subject_id", subjectID.String()),
			zap.Float64("scale_total", report.Scale.Total),
		)
	}
	if n := len(report.OrphanGrades); n > 0 {
		s.metrics.AddOrphans("grade", n)
		s.logger.Warn("grades without an active roster entry",
			zap.String("subject_id", subjectID.String()),
			zap.Int("count", n),
		)
	}
	return &report, nil
}

func (s *GradebookService) loadSubject(ctx context.Context, subjectID identity.ID) (*models.Subject, error) {
	if !subjectID.Valid {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

func (s *GradebookService) resolveMode(mode string) models.AverageMode {
	if mode == "" {
		return s.cfg.DefaultMode
	}
	return models.ParseAverageMode(mode)
}

func subjectCacheKey(subjectID identity.ID, mode models.AverageMode) string {
	return fmt.Sprintf("gradebook:subject:%s:%s", subjectID, mode)
}
