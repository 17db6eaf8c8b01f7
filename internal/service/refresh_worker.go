package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook/pkg/errors"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
	"github.com/noah-isme/sma-gradebook/pkg/jobs"
)

// RefreshJobType identifies subject summary refresh jobs.
const RefreshJobType = "gradebook.subject_summary.refresh"

type subjectRefresher interface {
	RefreshSubjectSummary(ctx context.Context, subjectID identity.ID) (*models.SubjectGradeReport, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RefreshTicket acknowledges a scheduled refresh.
type RefreshTicket struct {
	JobID     string      `json:"job_id,omitempty"`
	SubjectID identity.ID `json:"subject_id"`
	// Coalesced is set when a refresh for the subject was already waiting.
	Coalesced bool      `json:"coalesced"`
	QueuedAt  time.Time `json:"queued_at"`
}

// RefreshWorker recomputes cached subject summaries in the background.
type RefreshWorker struct {
	refresher subjectRefresher
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewRefreshWorker constructs a worker. The queue is attached with Attach
// because the queue itself needs the worker's Handle method.
func NewRefreshWorker(refresher subjectRefresher, metrics *MetricsService, logger *zap.Logger) *RefreshWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshWorker{refresher: refresher, metrics: metrics, logger: logger, now: time.Now}
}

// Attach sets the queue used by Schedule.
func (w *RefreshWorker) Attach(queue jobEnqueuer) {
	w.queue = queue
}

// Schedule enqueues a refresh of the subject's summaries. A refresh that is
// already waiting absorbs the request.
func (w *RefreshWorker) Schedule(subjectID identity.ID) (*RefreshTicket, error) {
	if !subjectID.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}
	if w.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "refresh queue not running")
	}
	ticket := &RefreshTicket{JobID: uuid.NewString(), SubjectID: subjectID, QueuedAt: w.now().UTC()}
	err := w.queue.Enqueue(jobs.Job{
		ID:       ticket.JobID,
		Key:      refreshJobKey(subjectID),
		Type:     RefreshJobType,
		Payload:  subjectID,
		Enqueued: ticket.QueuedAt,
	})
	switch {
	case errors.Is(err, jobs.ErrDuplicate):
		ticket.JobID = ""
		ticket.Coalesced = true
		w.metrics.IncRefreshJob("coalesced")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to schedule refresh")
	default:
		w.metrics.IncRefreshJob("queued")
	}
	return ticket, nil
}

// Handle runs one refresh job. Subjects that no longer exist are dropped
// without a retry.
func (w *RefreshWorker) Handle(ctx context.Context, job jobs.Job) error {
	subjectID := identity.Resolve(job.Payload)
	if !subjectID.Valid {
		w.metrics.IncRefreshJob("skipped")
		w.logger.Warn("refresh job without subject", zap.String("job_id", job.ID))
		return nil
	}

	start := time.Now()
	_, err := w.refresher.RefreshSubjectSummary(ctx, subjectID)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Status == http.StatusNotFound || appErr.Status == http.StatusBadRequest {
			w.metrics.IncRefreshJob("skipped")
			w.logger.Info("refresh skipped", zap.String("job_id", job.ID), zap.String("subject_id", subjectID.String()), zap.String("reason", appErr.Message))
			return nil
		}
		w.metrics.IncRefreshJob("failed")
		return fmt.Errorf("refresh subject %s: %w", subjectID, err)
	}
	w.metrics.IncRefreshJob("succeeded")
	w.logger.Debug("subject summary refreshed",
		zap.String("job_id", job.ID),
		zap.String("subject_id", subjectID.String()),
		zap.Int("attempt", job.Attempt),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func refreshJobKey(subjectID identity.ID) string {
	return "subject:" + subjectID.String()
}
