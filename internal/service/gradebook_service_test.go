package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

func gid(v int64) identity.ID { return identity.New(v) }

func gscore(v float64) *float64 { return &v }

type memoryCacheRepo struct {
	mu      sync.Mutex
	store   map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{store: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.store {
		if strings.HasPrefix(key, prefix) {
			delete(m.store, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

type fakeSubjectRepo struct {
	subjects map[int64]models.Subject
	err      error
}

func (f *fakeSubjectRepo) FindByID(_ context.Context, id identity.ID) (*models.Subject, error) {
	if f.err != nil {
		return nil, f.err
	}
	subject, ok := f.subjects[id.Int64]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &subject, nil
}

type fakeRosterRepo struct {
	assignments []models.StudentAssignment
	err         error
}

func (f *fakeRosterRepo) ListByGroup(_ context.Context, groupID identity.ID) ([]models.StudentAssignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.StudentAssignment
	for _, a := range f.assignments {
		if a.GroupID.Matches(groupID) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeStudentRepo struct {
	students []models.Student
	err      error
}

func (f *fakeStudentRepo) ListByGroup(_ context.Context, _ identity.ID) ([]models.Student, error) {
	return f.students, f.err
}

func (f *fakeStudentRepo) List(_ context.Context) ([]models.Student, error) {
	return f.students, f.err
}

func (f *fakeStudentRepo) FindByID(_ context.Context, id identity.ID) (*models.Student, error) {
	for _, s := range f.students {
		if s.ID.Matches(id) {
			student := s
			return &student, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeItemRepo struct {
	items []models.EvaluationItem
	err   error
}

func (f *fakeItemRepo) ListBySubject(_ context.Context, subjectID identity.ID) ([]models.EvaluationItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.EvaluationItem
	for _, item := range f.items {
		if item.SubjectID.Matches(subjectID) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItemRepo) FindByID(_ context.Context, id identity.ID) (*models.EvaluationItem, error) {
	for _, item := range f.items {
		if item.ID.Matches(id) {
			found := item
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeGradeRepo struct {
	grades []models.Grade
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeGradeRepo) ListBySubject(_ context.Context, _ identity.ID) ([]models.Grade, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.grades, f.err
}

func (f *fakeGradeRepo) ListByEvaluationItem(_ context.Context, itemID identity.ID) ([]models.Grade, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Grade
	for _, g := range f.grades {
		if g.EvaluationItemID.Matches(itemID) {
			out = append(out, g)
		}
	}
	return out, nil
}

type gradebookFixture struct {
	subjects *fakeSubjectRepo
	roster   *fakeRosterRepo
	students *fakeStudentRepo
	items    *fakeItemRepo
	grades   *fakeGradeRepo
	cache    *memoryCacheRepo
}

func newGradebookFixture() *gradebookFixture {
	return &gradebookFixture{
		subjects: &fakeSubjectRepo{subjects: map[int64]models.Subject{
			1: {ID: gid(1), GroupID: gid(10), Name: "Matemáticas", GradingScale: models.GradingScale{"exam": 60, "homework": 40}},
			2: {ID: gid(2), GroupID: gid(10), Name: "Historia", GradingScale: models.GradingScale{"exam": 50}},
		}},
		roster: &fakeRosterRepo{assignments: []models.StudentAssignment{
			{ID: gid(500), StudentID: gid(100), GroupID: gid(10)},
			{ID: gid(501), StudentID: gid(101), GroupID: gid(10)},
			{ID: gid(502), StudentID: gid(102), GroupID: gid(10), Status: models.AssignmentStatusInactive},
		}},
		students: &fakeStudentRepo{students: []models.Student{
			{ID: gid(100), FullName: "Ana Torres"},
			{ID: gid(101), FullName: "Luis Pérez"},
			{ID: gid(102), FullName: "Eva Ruiz"},
		}},
		items: &fakeItemRepo{items: []models.EvaluationItem{
			{ID: gid(20), SubjectID: gid(1), Type: "exam"},
			{ID: gid(21), SubjectID: gid(1), Type: "homework"},
			{ID: gid(30), SubjectID: gid(2), Type: "exam"},
		}},
		grades: &fakeGradeRepo{grades: []models.Grade{
			{ID: gid(1), EvaluationItemID: gid(20), StudentAssignmentID: gid(500), Score: gscore(80)},
			{ID: gid(2), EvaluationItemID: gid(21), StudentAssignmentID: gid(500), Score: gscore(100)},
			{ID: gid(3), EvaluationItemID: gid(20), StudentAssignmentID: gid(501), Score: gscore(0)},
			{ID: gid(4), EvaluationItemID: gid(20), StudentAssignmentID: gid(502), Score: gscore(75)},
		}},
		cache: newMemoryCacheRepo(),
	}
}

func (f *gradebookFixture) service(mode models.AverageMode) *GradebookService {
	metrics := NewMetricsService()
	svc := NewGradebookService(GradebookServiceParams{
		Subjects:    f.subjects,
		Assignments: f.roster,
		Students:    f.students,
		Items:       f.items,
		Grades:      f.grades,
		Cache:       NewCacheService(f.cache, metrics, time.Minute, nil, true),
		Metrics:     metrics,
		Config:      GradebookServiceConfig{DefaultMode: mode},
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestGradebookServiceSubjectSummary(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	report, hit, err := svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, report.Students, 2)

	ana := report.Students[0]
	assert.Equal(t, "Ana Torres", ana.StudentName)
	require.NotNil(t, ana.Average)
	assert.Equal(t, 90.0, *ana.Average)
	assert.Equal(t, models.PerformanceSuperior, ana.PerformanceLevel)
	require.NotNil(t, ana.Rank)
	assert.Equal(t, 1, *ana.Rank)

	luis := report.Students[1]
	assert.Nil(t, luis.Average)
	assert.Equal(t, models.GradeStatusPending, luis.Status)
	assert.Equal(t, 1, luis.NotSubmittedCount)

	assert.Len(t, report.OrphanGrades, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), report.GeneratedAt)
	assert.Equal(t, uint64(1), svc.metrics.Snapshot().OrphanRecords)
}

func TestGradebookServiceSubjectSummaryUsesCache(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	_, hit, err := svc.SubjectSummary(context.Background(), gid(1), "simple")
	require.NoError(t, err)
	assert.False(t, hit)

	report, hit, err := svc.SubjectSummary(context.Background(), gid(1), "simple")
	require.NoError(t, err)
	assert.True(t, hit)
	require.NotNil(t, report.Students[0].Average)
	assert.Equal(t, 90.0, *report.Students[0].Average)
	assert.Equal(t, 1, f.grades.calls)

	_, hit, err = svc.SubjectSummary(context.Background(), gid(1), "weighted")
	require.NoError(t, err)
	assert.False(t, hit, "modes are cached separately")
}

func TestGradebookServiceWeightedMode(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeWeighted)

	report, _, err := svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	assert.Equal(t, models.AverageModeWeighted, report.Mode)
	assert.False(t, report.ScaleFallback)
	require.NotNil(t, report.Students[0].Average)
	assert.Equal(t, 88.0, *report.Students[0].Average)
}

func TestGradebookServiceWeightedFallsBackOnInvalidScale(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	report, _, err := svc.SubjectSummary(context.Background(), gid(2), "weighted")
	require.NoError(t, err)
	assert.True(t, report.ScaleFallback)
	assert.Equal(t, models.AverageModeSimple, report.Mode)
	assert.False(t, report.Scale.Valid)
	assert.Equal(t, 50.0, report.Scale.Total)
}

func TestGradebookServiceSubjectNotFound(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	_, _, err := svc.SubjectSummary(context.Background(), gid(99), "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusNotFound, appErr.Status)

	_, _, err = svc.SubjectSummary(context.Background(), identity.Null, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestGradebookServiceSubjectLookupFailure(t *testing.T) {
	f := newGradebookFixture()
	f.subjects.err = errors.New("connection refused")
	svc := f.service(models.AverageModeSimple)

	_, _, err := svc.SubjectSummary(context.Background(), gid(1), "")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)
}

func TestGradebookServiceDegradesFailedFetch(t *testing.T) {
	f := newGradebookFixture()
	f.grades.err = errors.New("timeout")
	svc := f.service(models.AverageModeSimple)

	report, _, err := svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	require.Len(t, report.Students, 2)
	for _, student := range report.Students {
		assert.Nil(t, student.Average)
		assert.Equal(t, models.GradeStatusPending, student.Status)
	}
	assert.Equal(t, 2, report.PendingCount)
	assert.Equal(t, uint64(1), svc.metrics.Snapshot().DegradedFetches)
}

func TestGradebookServiceDoesNotCacheDegradedSummary(t *testing.T) {
	f := newGradebookFixture()
	f.grades.err = errors.New("db blip")
	svc := f.service(models.AverageModeSimple)

	report, hit, err := svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, report.Degraded)
	assert.Nil(t, report.Students[0].Average)
	assert.Empty(t, f.cache.store)

	f.grades.err = nil
	report, hit, err = svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, report.Degraded)
	require.NotNil(t, report.Students[0].Average)
	assert.Equal(t, 90.0, *report.Students[0].Average)

	_, hit, err = svc.SubjectSummary(context.Background(), gid(1), "")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestGradebookServiceCancelledRequest(t *testing.T) {
	f := newGradebookFixture()
	f.grades.err = context.Canceled
	svc := f.service(models.AverageModeSimple)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.SubjectSummary(ctx, gid(1), "")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, appErrors.FromError(err).Status)
}

func TestGradebookServiceRefreshSubjectSummary(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	_, _, err := svc.SubjectSummary(context.Background(), gid(1), "weighted")
	require.NoError(t, err)
	_, _, err = svc.SubjectSummary(context.Background(), gid(1), "simple")
	require.NoError(t, err)

	f.grades.grades = append(f.grades.grades, models.Grade{ID: gid(5), EvaluationItemID: gid(21), StudentAssignmentID: gid(501), Score: gscore(70)})

	report, err := svc.RefreshSubjectSummary(context.Background(), gid(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gradebook:subject:1:weighted", "gradebook:subject:1:simple"}, f.cache.deleted)
	require.NotNil(t, report.Students[1].Average)
	assert.Equal(t, 70.0, *report.Students[1].Average)

	_, hit, err := svc.SubjectSummary(context.Background(), gid(1), "simple")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestGradebookServiceGradingSheet(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	sheet, err := svc.GradingSheet(context.Background(), gid(20))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)

	assert.Equal(t, "Ana Torres", sheet.Rows[0].StudentName)
	assert.Equal(t, models.GradeStatusGraded, sheet.Rows[0].Status)
	assert.Equal(t, models.GradeStatusNotSubmitted, sheet.Rows[1].Status)
	require.Len(t, sheet.Orphans, 1)
	assert.Equal(t, int64(502), sheet.Orphans[0].StudentAssignmentID.Int64)

	assert.Equal(t, 2, sheet.Stats.Total)
	assert.Equal(t, 1, sheet.Stats.Graded)
	assert.Equal(t, 1, sheet.Stats.NotSubmitted)
	require.NotNil(t, sheet.Stats.Highest)
	assert.Equal(t, 80.0, *sheet.Stats.Highest)
}

func TestGradebookServiceGradingSheetUnknownItem(t *testing.T) {
	f := newGradebookFixture()
	svc := f.service(models.AverageModeSimple)

	_, err := svc.GradingSheet(context.Background(), gid(404))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}
