package service

import (
	"context"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// CommitResult reports the outcome of a single-key write.
type CommitResult[T any] struct {
	// Canonical is the snapshot the primitive reported after the commit.
	Canonical domain.Table[T]

	// Applied reports whether Canonical reflects the intended write. It is
	// false when the primitive rejected the proposal or merged it away.
	Applied bool
}

// TableOption configures a TableService.
type TableOption[T any] func(*TableService[T])

// WithEqual sets the value equality used to decide whether a write was applied.
// The default is reflect.DeepEqual.
func WithEqual[T any](equal func(a, b T) bool) TableOption[T] {
	return func(s *TableService[T]) {
		s.equal = equal
	}
}

// TableService provides per-key access to one table.
//
// Every operation is a read-modify-write against the synchronizer with no
// lock held between the read and the commit. Whether two concurrent writers
// can both win is decided by the synchronizer; the service reports the
// outcome through CommitResult instead of guessing.
type TableService[T any] struct {
	sync  Synchronizer[T]
	equal func(a, b T) bool
}

// NewTableService creates a TableService over sync.
func NewTableService[T any](sync Synchronizer[T], opts ...TableOption[T]) *TableService[T] {
	s := &TableService[T]{
		sync:  sync,
		equal: deepEqual[T],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Read
// ============================================================================

// Get returns the value stored at key in the canonical snapshot.
//
// Returns ErrMissingKey when the key is absent and also when the read itself
// fails; the read failure is kept as the error's cause.
func (s *TableService[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	table, err := s.sync.Sync(ctx, nil)
	if err != nil {
		return zero, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}

	val, ok := table.Get(key)
	if !ok {
		return zero, domain.ErrMissingKey.WithDetails("key: " + key)
	}
	return val, nil
}

// ============================================================================
// Write
// ============================================================================

// Set maps key to val and commits the resulting snapshot.
//
// A failed read or commit returns ErrMissingKey. A commit the primitive
// rejected or merged away is not an error: it is reported with
// Applied == false.
func (s *TableService[T]) Set(ctx context.Context, key string, val T) (CommitResult[T], error) {
	table, err := s.sync.Sync(ctx, nil)
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}

	proposed := table.With(key, val)
	canonical, err := s.sync.Sync(ctx, &proposed)
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}

	got, ok := canonical.Get(key)
	return CommitResult[T]{
		Canonical: canonical,
		Applied:   ok && s.equal(got, val),
	}, nil
}

// Delete removes key and commits the resulting snapshot.
//
// Deleting an absent key returns ErrMissingKey without committing anything.
func (s *TableService[T]) Delete(ctx context.Context, key string) (CommitResult[T], error) {
	table, err := s.sync.Sync(ctx, nil)
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}
	if !table.Has(key) {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key)
	}

	proposed := table.Without(key)
	canonical, err := s.sync.Sync(ctx, &proposed)
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}

	return CommitResult[T]{
		Canonical: canonical,
		Applied:   !canonical.Has(key),
	}, nil
}
