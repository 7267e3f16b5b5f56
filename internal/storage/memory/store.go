package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/pkg/cmap"
)

type entry struct {
	mu  sync.Mutex
	rec cas.RawRecord
}

// Store keeps every table in memory.
type Store struct {
	tables *cmap.Map[string, *entry]
	engine cas.Engine[json.RawMessage]
	logger *slog.Logger

	policy       cas.Policy
	historyLimit int
	shards       int
}

// Option configures the Store.
type Option func(*Store)

// WithPolicy sets how stale proposals are handled. Default: reject.
func WithPolicy(p cas.Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithHistoryLimit sets how many past versions a table keeps for merging.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		s.historyLimit = n
	}
}

// WithShards sets the shard count of the table map.
func WithShards(n int) Option {
	return func(s *Store) {
		s.shards = n
	}
}

// WithLogger sets the logger used for commit outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		policy:       cas.Reject,
		historyLimit: cas.DefaultHistoryLimit,
		shards:       cmap.DefaultShardCount,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tables = cmap.NewWithShards[string, *entry](s.shards)
	s.engine = cas.RawEngine(s.policy, s.historyLimit)
	return s
}

// Sync reads or commits the named table.
func (s *Store) Sync(ctx context.Context, table string, proposed *domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error) {
	if err := ctx.Err(); err != nil {
		return domain.Table[json.RawMessage]{}, domain.ErrSyncFailed.WithDetails("table: " + table).WithCause(err)
	}

	if proposed == nil {
		e, ok := s.tables.Get(table)
		if !ok {
			return domain.Table[json.RawMessage]{}, nil
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.rec.Current, nil
	}

	e := s.tables.GetOrCompute(table, func() *entry { return &entry{} })
	e.mu.Lock()
	defer e.mu.Unlock()

	next, outcome := s.engine.Commit(e.rec, *proposed)
	e.rec = next

	s.logger.Debug("table commit",
		"table", table,
		"base_version", proposed.Version(),
		"version", next.Current.Version(),
		"outcome", outcome.String())

	return next.Current, nil
}

// Tables lists tables that were committed at least once, sorted.
func (s *Store) Tables(_ context.Context) ([]string, error) {
	return s.tables.Keys(), nil
}

// RowCounts reports the number of rows per table.
func (s *Store) RowCounts() map[string]int {
	counts := make(map[string]int, s.tables.Count())
	for name, e := range s.tables.All() {
		e.mu.Lock()
		counts[name] = e.rec.Current.Len()
		e.mu.Unlock()
	}
	return counts
}

// Close drops every table. The store stays usable and starts empty.
func (s *Store) Close() error {
	s.tables.Clear()
	return nil
}
