package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// Getter reads single keys. TableService and ReactiveTableService adapters
// satisfy it.
type Getter[T any] interface {
	Get(ctx context.Context, key string) (T, error)
}

// BatchOption configures GetAll.
type BatchOption func(*batchConfig)

type batchConfig struct {
	limit int
}

// WithConcurrency bounds the number of reads in flight. Zero or a negative
// value means unbounded.
func WithConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		c.limit = n
	}
}

// GetAll reads every key concurrently and returns the values in key order.
//
// It is all-or-nothing: if any read fails, GetAll returns ErrMissingKey and
// no values. Each key costs one full-table read on the underlying primitive.
func GetAll[T any](ctx context.Context, getter Getter[T], keys []string, opts ...BatchOption) ([]T, error) {
	cfg := batchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	values := make([]T, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}

	for i, key := range keys {
		g.Go(func() error {
			v, err := getter.Get(gctx, key)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if domain.IsDomainError(err, domain.ErrMissingKey.Code) {
			return nil, err
		}
		return nil, domain.ErrMissingKey.WithCause(err)
	}
	return values, nil
}
