package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// gatherer runs independent collection fetches concurrently and joins them
// before aggregation starts. A failed or timed out fetch degrades to an empty
// collection; only cancellation of the caller's context aborts the gather.
type gatherer struct {
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	parent  context.Context
	logger  *zap.Logger
	metrics *MetricsService
	fields  []zap.Field

	degraded atomic.Bool
}

func newGatherer(parent context.Context, timeout time.Duration, logger *zap.Logger, metrics *MetricsService, fields ...zap.Field) *gatherer {
	group, groupCtx := errgroup.WithContext(parent)
	ctx, cancel := groupCtx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(groupCtx, timeout)
	}
	return &gatherer{group: group, ctx: ctx, cancel: cancel, parent: parent, logger: logger, metrics: metrics, fields: fields}
}

// Wait blocks until every fetch finished.
func (g *gatherer) Wait() error {
	defer g.cancel()
	return g.group.Wait()
}

// Degraded reports whether any fetch fell back to empty data.
func (g *gatherer) Degraded() bool {
	return g.degraded.Load()
}

// gather schedules fn and stores its result in dst.
func gather[T any](g *gatherer, collection string, dst *[]T, fn func(context.Context) ([]T, error)) {
	g.group.Go(func() error {
		start := time.Now()
		items, err := fn(g.ctx)
		if err != nil {
			if g.parent.Err() != nil {
				return g.parent.Err()
			}
			g.degraded.Store(true)
			g.metrics.ObserveFetch(collection, time.Since(start), true)
			fields := append([]zap.Field{zap.String("collection", collection), zap.Error(err)}, g.fields...)
			g.logger.Warn("collection fetch failed, continuing with empty data", fields...)
			*dst = []T{}
			return nil
		}
		g.metrics.ObserveFetch(collection, time.Since(start), false)
		if items == nil {
			items = []T{}
		}
		*dst = items
		return nil
	})
}
