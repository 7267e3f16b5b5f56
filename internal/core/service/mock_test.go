package service

import (
	"context"
	"sync"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// mockSync is an in-memory versioned primitive. A proposal derived from a
// stale version is rejected unless lastWriterWins is set.
type mockSync[T any] struct {
	mu             sync.Mutex
	table          domain.Table[T]
	lastWriterWins bool

	reads   int
	commits int

	readErr   error
	commitErr error

	// beforeCommit runs with the lock released, before a commit is applied.
	beforeCommit func(proposed domain.Table[T])
	// override replaces the canonical result of a commit when set.
	override func(proposed domain.Table[T]) domain.Table[T]
}

func newMockSync[T any](rows map[string]T) *mockSync[T] {
	return &mockSync[T]{table: domain.NewVersionedTable(1, rows)}
}

func (m *mockSync[T]) Sync(_ context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
	if proposed == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.reads++
		if m.readErr != nil {
			return domain.Table[T]{}, m.readErr
		}
		return m.table, nil
	}

	if m.beforeCommit != nil {
		m.beforeCommit(*proposed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.commitErr != nil {
		return domain.Table[T]{}, m.commitErr
	}
	if m.override != nil {
		m.table = m.override(*proposed)
		return m.table, nil
	}
	if proposed.Version() != m.table.Version() && !m.lastWriterWins {
		return m.table, nil
	}
	m.table = domain.NewVersionedTable(m.table.Version()+1, proposed.Rows())
	return m.table, nil
}

func (m *mockSync[T]) current() domain.Table[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table
}

func (m *mockSync[T]) counts() (reads, commits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.commits
}
