package service

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/telemetry/logger"
)

// SyncRecorder receives per-call measurements. *metric.Registry satisfies it.
type SyncRecorder interface {
	RecordSync(table, op, outcome string)
	ObserveSyncDuration(table, op string, seconds float64)
	IncCommitConflict(table string)
}

// WithMetrics records every call made through the synchronizer.
//
// A commit counts as a conflict when the canonical rows differ from the
// proposed rows, which happens when the primitive rejected the proposal or
// merged it with concurrent work.
func WithMetrics[T any](table string, rec SyncRecorder) Middleware[T] {
	return func(next Synchronizer[T]) Synchronizer[T] {
		return SyncFunc[T](func(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
			op := syncOp(proposed)
			start := time.Now()

			canonical, err := next.Sync(ctx, proposed)

			rec.ObserveSyncDuration(table, op, time.Since(start).Seconds())
			if err != nil {
				rec.RecordSync(table, op, "error")
				return canonical, err
			}
			rec.RecordSync(table, op, "ok")
			if proposed != nil && !canonical.SameRows(*proposed, deepEqual[T]) {
				rec.IncCommitConflict(table)
			}
			return canonical, nil
		})
	}
}

// WithRateLimit blocks each call until limiter allows it. A context that ends
// while waiting fails the call with ErrSyncFailed.
func WithRateLimit[T any](limiter *rate.Limiter) Middleware[T] {
	return func(next Synchronizer[T]) Synchronizer[T] {
		return SyncFunc[T](func(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
			if err := limiter.Wait(ctx); err != nil {
				return domain.Table[T]{}, domain.ErrSyncFailed.WithDetails("rate limit").WithCause(err)
			}
			return next.Sync(ctx, proposed)
		})
	}
}

// WithLogging logs every call at debug level and failures at warn level.
// A nil log uses slog.Default().
func WithLogging[T any](table string, log *slog.Logger) Middleware[T] {
	if log == nil {
		log = slog.Default()
	}
	return func(next Synchronizer[T]) Synchronizer[T] {
		return SyncFunc[T](func(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
			attrs := []any{"table", table, "op", syncOp(proposed)}
			if id := logger.RequestIDFromContext(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if proposed != nil {
				attrs = append(attrs, "base_version", proposed.Version(), "rows", proposed.Len())
			}

			start := time.Now()
			canonical, err := next.Sync(ctx, proposed)
			attrs = append(attrs, "duration", time.Since(start))

			if err != nil {
				log.WarnContext(ctx, "sync failed", append(attrs, "error", err)...)
				return canonical, err
			}
			log.DebugContext(ctx, "sync", append(attrs, "version", canonical.Version())...)
			return canonical, nil
		})
	}
}

func deepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
