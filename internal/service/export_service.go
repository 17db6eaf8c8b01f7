package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/export"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
	"github.com/noah-isme/sma-gradebook/pkg/storage"
)

type subjectSummaryProvider interface {
	SubjectSummary(ctx context.Context, subjectID identity.ID, mode string) (*models.SubjectGradeReport, bool, error)
}

type attendanceOverviewProvider interface {
	Overview(ctx context.Context, req AttendanceOverviewRequest) (*models.AttendanceOverview, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult describes a stored export and its download link.
type ExportResult struct {
	ID        string        `json:"id"`
	Format    export.Format `json:"format"`
	Token     string        `json:"token"`
	URL       string        `json:"url"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ExportFile is a stored export ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Summaries  subjectSummaryProvider
	Attendance attendanceOverviewProvider
	Storage    fileStorage
	Signer     *storage.SignedURLSigner
	Metrics    *MetricsService
	Logger     *zap.Logger
	Config     ExportConfig
	// Renderers overrides the renderer used per format.
	Renderers map[export.Format]export.Renderer
}

// ExportService renders reports to files and hands out signed download links.
type ExportService struct {
	summaries  subjectSummaryProvider
	attendance attendanceOverviewProvider
	storage    fileStorage
	signer     *storage.SignedURLSigner
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ExportConfig
	renderers  map[export.Format]export.Renderer
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	renderers := map[export.Format]export.Renderer{
		export.FormatCSV: export.NewCSVExporter(),
		export.FormatPDF: export.NewPDFExporter(),
	}
	for format, renderer := range params.Renderers {
		renderers[format] = renderer
	}
	return &ExportService{
		summaries:  params.Summaries,
		attendance: params.Attendance,
		storage:    params.Storage,
		signer:     params.Signer,
		metrics:    params.Metrics,
		logger:     logger,
		cfg:        cfg,
		renderers:  renderers,
	}
}

// ExportSubjectSummary renders the grade report of a subject.
func (s *ExportService) ExportSubjectSummary(ctx context.Context, subjectID identity.ID, mode, format string) (*ExportResult, error) {
	f, err := parseExportFormat(format)
	if err != nil {
		return nil, err
	}
	report, _, err := s.summaries.SubjectSummary(ctx, subjectID, mode)
	if err != nil {
		return nil, err
	}
	return s.store(f, "grades", subjectSummaryDataset(report))
}

// ExportAttendanceOverview renders an attendance overview.
func (s *ExportService) ExportAttendanceOverview(ctx context.Context, req AttendanceOverviewRequest, format string) (*ExportResult, error) {
	f, err := parseExportFormat(format)
	if err != nil {
		return nil, err
	}
	overview, err := s.attendance.Overview(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.store(f, "attendance", attendanceOverviewDataset(overview, req.Filter))
}

// Open validates a download token and loads the referenced file.
func (s *ExportService) Open(token string) (*ExportFile, error) {
	exportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "download link expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}
	data, err := s.storage.Read(relPath)
	if err != nil {
		s.logger.Warn("export file unavailable", zap.String("export_id", exportID), zap.String("path", relPath), zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	format, ok := export.ParseFormat(strings.TrimPrefix(filepath.Ext(relPath), "."))
	if !ok {
		format = export.FormatCSV
	}
	return &ExportFile{Filename: exportID + format.Extension(), ContentType: format.ContentType(), Data: data}, nil
}

// Cleanup removes export files older than ttl, or the configured result TTL
// when ttl is not positive.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExportService) store(format export.Format, kind string, dataset export.Dataset) (*ExportResult, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(fmt.Sprintf("%s/%s%s", kind, exportID, format.Extension()), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	s.metrics.IncExport(string(format))

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		ID:        exportID,
		Format:    format,
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

func parseExportFormat(raw string) (export.Format, error) {
	if strings.TrimSpace(raw) == "" {
		return export.FormatCSV, nil
	}
	format, ok := export.ParseFormat(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return format, nil
}

var subjectSummaryHeaders = []string{"Rank", "Student", "Exams", "Homework", "Projects", "Attendance", "Average", "Level", "Status"}

func subjectSummaryDataset(report *models.SubjectGradeReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Students))
	for _, student := range report.Students {
		rank := "-"
		if student.Rank != nil {
			rank = strconv.Itoa(*student.Rank)
		}
		rows = append(rows, map[string]string{
			"Rank":       rank,
			"Student":    student.StudentName,
			"Exams":      formatScore(student.ExamsAverage),
			"Homework":   formatScore(student.TasksAverage),
			"Projects":   formatScore(student.ProjectsAverage),
			"Attendance": formatScore(student.AttendanceAverage),
			"Average":    formatScore(student.Average),
			"Level":      student.PerformanceLevel,
			"Status":     string(student.Status),
		})
	}

	footer := []string{
		fmt.Sprintf("Mode: %s", report.Mode),
		fmt.Sprintf("Class average: %s", formatScore(report.ClassAverage)),
		fmt.Sprintf("Highest: %s / Lowest: %s", formatScore(report.HighestAverage), formatScore(report.LowestAverage)),
		fmt.Sprintf("Pending students: %d", report.PendingCount),
	}
	if report.ScaleFallback {
		footer = append(footer, fmt.Sprintf("Grading scale totals %.2f, simple average used", report.Scale.Total))
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Grade Summary - Subject %s", report.SubjectID),
		Headers: subjectSummaryHeaders,
		Rows:    rows,
		Footer:  footer,
	}
}

var attendanceOverviewHeaders = []string{"Student", "Records", "Present", "Absent", "Late", "Excused", "Attendance (%)", "Class"}

func attendanceOverviewDataset(overview *models.AttendanceOverview, filter models.AttendanceFilter) export.Dataset {
	rows := make([]map[string]string, 0, len(overview.Students))
	for _, summary := range overview.Students {
		rows = append(rows, map[string]string{
			"Student":        summary.StudentName,
			"Records":        strconv.Itoa(summary.TotalRecords),
			"Present":        strconv.Itoa(summary.PresentCount),
			"Absent":         strconv.Itoa(summary.AbsentCount),
			"Late":           strconv.Itoa(summary.LateCount),
			"Excused":        strconv.Itoa(summary.ExcusedCount),
			"Attendance (%)": strconv.Itoa(summary.AttendancePercentage),
			"Class":          summary.Class,
		})
	}

	title := "Attendance Overview"
	if filter.SubjectID.Valid {
		title = fmt.Sprintf("%s - Subject %s", title, filter.SubjectID)
	}
	totals := overview.Totals
	return export.Dataset{
		Title:   title,
		Headers: attendanceOverviewHeaders,
		Rows:    rows,
		Footer: []string{
			fmt.Sprintf("Students: %d", totals.Students),
			fmt.Sprintf("Present %d, absent %d, late %d, excused %d", totals.Present, totals.Absent, totals.Late, totals.Excused),
		},
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
