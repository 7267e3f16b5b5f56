package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// Observer is called with the table every time the reactive cache is
// replaced. Observers run on the mutating goroutine while the mutation lock
// is held, so they must not call Set, Delete or Refresh synchronously.
type Observer[T any] func(table domain.Table[T])

// ReactiveOption configures a ReactiveTableService.
type ReactiveOption[T any] func(*ReactiveTableService[T])

// WithOptimistic selects the mutation discipline. Optimistic services apply
// a mutation to the cache before it is committed; pessimistic services (the
// default) wait for the commit.
func WithOptimistic[T any](optimistic bool) ReactiveOption[T] {
	return func(s *ReactiveTableService[T]) {
		s.optimistic = optimistic
	}
}

// WithReactiveEqual sets the value equality used to compare snapshots and to
// compute CommitResult.Applied. The default is reflect.DeepEqual.
func WithReactiveEqual[T any](equal func(a, b T) bool) ReactiveOption[T] {
	return func(s *ReactiveTableService[T]) {
		s.equal = equal
	}
}

// ReactiveTableService caches one table locally, serves reads from the
// cache and notifies observers whenever the cache changes.
type ReactiveTableService[T any] struct {
	sync       Synchronizer[T]
	optimistic bool
	equal      func(a, b T) bool

	// cache is replaced atomically; readers never see a partial table.
	cache atomic.Pointer[domain.Table[T]]

	// mu serializes mutations, including observer notification.
	mu        sync.Mutex
	confirmed domain.Table[T]

	obsMu     sync.RWMutex
	observers []observerEntry[T]
	nextID    uint64
}

type observerEntry[T any] struct {
	id uint64
	fn Observer[T]
}

// NewReactiveTableService seeds the cache with an initial read from sync.
func NewReactiveTableService[T any](ctx context.Context, sync Synchronizer[T], opts ...ReactiveOption[T]) (*ReactiveTableService[T], error) {
	s := &ReactiveTableService[T]{
		sync:  sync,
		equal: deepEqual[T],
	}
	for _, opt := range opts {
		opt(s)
	}

	initial, err := sync.Sync(ctx, nil)
	if err != nil {
		return nil, domain.ErrMissingKey.WithDetails("initial sync").WithCause(err)
	}
	s.confirmed = initial
	s.cache.Store(&initial)
	return s, nil
}

// Optimistic reports the configured mutation discipline.
func (s *ReactiveTableService[T]) Optimistic() bool {
	return s.optimistic
}

// Snapshot returns the cached table.
func (s *ReactiveTableService[T]) Snapshot() domain.Table[T] {
	return *s.cache.Load()
}

// Get returns the cached value at key. It never calls the synchronizer.
func (s *ReactiveTableService[T]) Get(key string) (T, error) {
	val, ok := s.Snapshot().Get(key)
	if !ok {
		var zero T
		return zero, domain.ErrMissingKey.WithDetails("key: " + key)
	}
	return val, nil
}

// Getter adapts the service to the context-taking Getter interface used by
// GetAll and the resolver. Reads are still served from the cache.
func (s *ReactiveTableService[T]) Getter() Getter[T] {
	return cachedGetter[T]{s}
}

type cachedGetter[T any] struct {
	s *ReactiveTableService[T]
}

func (g cachedGetter[T]) Get(_ context.Context, key string) (T, error) {
	return g.s.Get(key)
}

// Subscribe registers an observer and returns a function that removes it.
// Observers are called in registration order.
func (s *ReactiveTableService[T]) Subscribe(observer Observer[T]) (unsubscribe func()) {
	s.obsMu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observerEntry[T]{id: id, fn: observer})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, e := range s.observers {
				if e.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// ============================================================================
// Mutations
// ============================================================================

// Set maps key to val.
func (s *ReactiveTableService[T]) Set(ctx context.Context, key string, val T) (CommitResult[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposed := s.Snapshot().With(key, val)
	canonical, err := s.mutate(ctx, proposed)
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}

	got, ok := canonical.Get(key)
	return CommitResult[T]{Canonical: canonical, Applied: ok && s.equal(got, val)}, nil
}

// Delete removes key. Deleting a key absent from the cache fails with
// ErrMissingKey and does not call the synchronizer.
func (s *ReactiveTableService[T]) Delete(ctx context.Context, key string) (CommitResult[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Snapshot()
	if !current.Has(key) {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key)
	}

	canonical, err := s.mutate(ctx, current.Without(key))
	if err != nil {
		return CommitResult[T]{}, domain.ErrMissingKey.WithDetails("key: " + key).WithCause(err)
	}
	return CommitResult[T]{Canonical: canonical, Applied: !canonical.Has(key)}, nil
}

// Refresh re-reads the synchronizer and installs the result, notifying
// observers if the rows changed.
func (s *ReactiveTableService[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.sync.Sync(ctx, nil)
	if err != nil {
		return domain.ErrMissingKey.WithDetails("refresh").WithCause(err)
	}
	s.confirmed = latest
	s.installIfChanged(latest)
	return nil
}

// mutate runs the configured discipline. Callers hold s.mu.
func (s *ReactiveTableService[T]) mutate(ctx context.Context, proposed domain.Table[T]) (domain.Table[T], error) {
	if !s.optimistic {
		canonical, err := s.sync.Sync(ctx, &proposed)
		if err != nil {
			return domain.Table[T]{}, err
		}
		s.confirmed = canonical
		s.installIfChanged(canonical)
		return canonical, nil
	}

	s.install(proposed)

	canonical, err := s.sync.Sync(ctx, &proposed)
	if err != nil {
		s.install(s.confirmed)
		return domain.Table[T]{}, err
	}
	s.confirmed = canonical
	s.installIfChanged(canonical)
	return canonical, nil
}

// installIfChanged installs table, notifying observers only when its rows
// differ from the cache. Same rows still replace the cached version.
// Callers hold s.mu.
func (s *ReactiveTableService[T]) installIfChanged(table domain.Table[T]) {
	if table.SameRows(s.Snapshot(), s.equal) {
		s.cache.Store(&table)
		return
	}
	s.install(table)
}

// install replaces the cache and notifies observers. Callers hold s.mu.
func (s *ReactiveTableService[T]) install(table domain.Table[T]) {
	s.cache.Store(&table)

	s.obsMu.RLock()
	observers := make([]Observer[T], len(s.observers))
	for i, e := range s.observers {
		observers[i] = e.fn
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(table)
	}
}
