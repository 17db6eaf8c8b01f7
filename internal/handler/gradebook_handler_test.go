package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook/internal/middleware"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

type gradebookServiceMock struct {
	report    *models.SubjectGradeReport
	sheet     *models.GradeReconciliation
	cacheHit  bool
	err       error
	gotID     identity.ID
	gotMode   string
	sheetCall identity.ID
}

func (m *gradebookServiceMock) SubjectSummary(_ context.Context, subjectID identity.ID, mode string) (*models.SubjectGradeReport, bool, error) {
	m.gotID, m.gotMode = subjectID, mode
	return m.report, m.cacheHit, m.err
}

func (m *gradebookServiceMock) GradingSheet(_ context.Context, itemID identity.ID) (*models.GradeReconciliation, error) {
	m.sheetCall = itemID
	return m.sheet, m.err
}

type refreshSchedulerMock struct {
	ticket *service.RefreshTicket
	err    error
}

func (m *refreshSchedulerMock) Schedule(subjectID identity.ID) (*service.RefreshTicket, error) {
	if m.err != nil {
		return nil, m.err
	}
	ticket := *m.ticket
	ticket.SubjectID = subjectID
	return &ticket, nil
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	return r
}

func perform(r http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func avg(v float64) *float64 { return &v }

func TestGradebookHandlerSubjectSummaryDegradedMeta(t *testing.T) {
	svc := &gradebookServiceMock{report: &models.SubjectGradeReport{SubjectID: identity.New(1), Degraded: true}}
	r := newTestRouter()
	h := NewGradebookHandler(svc, nil)
	r.GET("/subjects/:id/grades/summary", h.SubjectSummary)

	w, env := perform(r, http.MethodGet, "/subjects/1/grades/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env.Meta["degraded"])
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.NotContains(t, env.Meta, "scale_fallback")
}

func TestGradebookHandlerSubjectSummary(t *testing.T) {
	svc := &gradebookServiceMock{
		report: &models.SubjectGradeReport{
			SubjectID:     identity.New(1),
			Mode:          models.AverageModeSimple,
			ScaleFallback: true,
			Students: []models.StudentGradeSummary{
				{AssignmentID: identity.New(500), StudentName: "Ana Torres", Average: avg(90), PerformanceLevel: models.PerformanceSuperior},
			},
		},
		cacheHit: true,
	}
	r := newTestRouter()
	h := NewGradebookHandler(svc, nil)
	r.GET("/subjects/:id/grades/summary", h.SubjectSummary)

	w, env := perform(r, http.MethodGet, "/subjects/1/grades/summary?mode=weighted", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, identity.New(1), svc.gotID)
	assert.Equal(t, "weighted", svc.gotMode)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, true, env.Meta["scale_fallback"])

	var report models.SubjectGradeReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Students, 1)
	assert.Equal(t, "Ana Torres", report.Students[0].StudentName)
}

func TestGradebookHandlerSubjectSummaryValidation(t *testing.T) {
	r := newTestRouter()
	h := NewGradebookHandler(&gradebookServiceMock{}, nil)
	r.GET("/subjects/:id/grades/summary", h.SubjectSummary)

	w, env := perform(r, http.MethodGet, "/subjects/abc/grades/summary", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)

	w, _ = perform(r, http.MethodGet, "/subjects/1/grades/summary?mode=median", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradebookHandlerSubjectSummaryNotFound(t *testing.T) {
	r := newTestRouter()
	h := NewGradebookHandler(&gradebookServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "subject not found")}, nil)
	r.GET("/subjects/:id/grades/summary", h.SubjectSummary)

	w, env := perform(r, http.MethodGet, "/subjects/9/grades/summary", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "subject not found", env.Error.Message)
}

func TestGradebookHandlerRefresh(t *testing.T) {
	r := newTestRouter()
	scheduler := &refreshSchedulerMock{ticket: &service.RefreshTicket{JobID: "job-1", QueuedAt: time.Now()}}
	h := NewGradebookHandler(&gradebookServiceMock{}, scheduler)
	r.POST("/subjects/:id/grades/summary/refresh", h.RefreshSubjectSummary)

	w, env := perform(r, http.MethodPost, "/subjects/3/grades/summary/refresh", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var ticket service.RefreshTicket
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "job-1", ticket.JobID)
	assert.Equal(t, identity.New(3), ticket.SubjectID)

	r = newTestRouter()
	h = NewGradebookHandler(&gradebookServiceMock{}, nil)
	r.POST("/subjects/:id/grades/summary/refresh", h.RefreshSubjectSummary)
	w, _ = perform(r, http.MethodPost, "/subjects/3/grades/summary/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGradebookHandlerGradingSheet(t *testing.T) {
	svc := &gradebookServiceMock{sheet: &models.GradeReconciliation{
		EvaluationItemID: identity.New(20),
		Rows:             []models.GradeRow{{StudentName: "Ana Torres", Status: models.GradeStatusGraded, Score: avg(80)}},
		Stats:            models.GradeSheetStats{Total: 1, Graded: 1},
	}}
	r := newTestRouter()
	h := NewGradebookHandler(svc, nil)
	r.GET("/evaluation-items/:id/grading-sheet", h.GradingSheet)

	w, env := perform(r, http.MethodGet, "/evaluation-items/20/grading-sheet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, identity.New(20), svc.sheetCall)

	var sheet models.GradeReconciliation
	require.NoError(t, json.Unmarshal(env.Data, &sheet))
	assert.Equal(t, 1, sheet.Stats.Graded)
	assert.Equal(t, models.GradeStatusGraded, sheet.Rows[0].Status)
}
