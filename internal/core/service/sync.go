package service

import (
	"context"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// Synchronizer is the synchronization primitive for one table.
//
// Sync with a nil proposal returns the latest canonical snapshot. Sync with a
// proposal attempts to commit it and returns the canonical snapshot that
// resulted, which may be the proposal (accepted), the unchanged previous
// snapshot (rejected) or a merge with concurrent writers.
//
// The services in this package never mutate a table except through Sync.
type Synchronizer[T any] interface {
	Sync(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error)
}

// SyncFunc adapts an ordinary function to the Synchronizer interface.
type SyncFunc[T any] func(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error)

// Sync calls f(ctx, proposed).
func (f SyncFunc[T]) Sync(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
	return f(ctx, proposed)
}

// Middleware decorates a Synchronizer.
type Middleware[T any] func(next Synchronizer[T]) Synchronizer[T]

// Chain wraps s with the given middleware. The first middleware is the
// outermost one.
func Chain[T any](s Synchronizer[T], mws ...Middleware[T]) Synchronizer[T] {
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}

// syncOp names a Sync call for logs and metrics.
func syncOp[T any](proposed *domain.Table[T]) string {
	if proposed == nil {
		return "read"
	}
	return "commit"
}
