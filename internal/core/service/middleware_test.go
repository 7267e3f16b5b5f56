package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/telemetry/logger"
)

type fakeRecorder struct {
	mu        sync.Mutex
	calls     []string
	durations int
	conflicts int
}

func (r *fakeRecorder) RecordSync(table, op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, table+":"+op+":"+outcome)
}

func (r *fakeRecorder) ObserveSyncDuration(string, string, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations++
}

func (r *fakeRecorder) IncCommitConflict(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware[string] {
		return func(next Synchronizer[string]) Synchronizer[string] {
			return SyncFunc[string](func(ctx context.Context, p *domain.Table[string]) (domain.Table[string], error) {
				order = append(order, name)
				return next.Sync(ctx, p)
			})
		}
	}

	s := Chain[string](newMockSync(map[string]string{}), tag("outer"), tag("inner"))
	if _, err := s.Sync(context.Background(), nil); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]string{"outer", "inner"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestChain_Empty(t *testing.T) {
	m := newMockSync(map[string]string{})
	if got := Chain[string](m); got != Synchronizer[string](m) {
		t.Error("Chain with no middleware should return the synchronizer itself")
	}
}

func TestWithMetrics(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	m := newMockSync(map[string]string{})
	svc := NewTableService(Chain[string](m, WithMetrics[string]("users", rec)))

	if _, err := svc.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Force a stale commit.
	m.beforeCommit = func(domain.Table[string]) {
		m.mu.Lock()
		m.table = domain.NewVersionedTable(m.table.Version()+1, m.table.Rows())
		m.mu.Unlock()
	}
	if _, err := svc.Set(ctx, "b", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	m.beforeCommit = nil

	m.readErr = errors.New("down")
	_, _ = svc.Get(ctx, "a")

	want := []string{
		"users:read:ok", "users:commit:ok",
		"users:read:ok", "users:commit:ok",
		"users:read:error",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if rec.durations != len(want) {
		t.Errorf("durations = %d, want %d", rec.durations, len(want))
	}
	if rec.conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", rec.conflicts)
	}
}

func TestWithRateLimit(t *testing.T) {
	m := newMockSync(map[string]string{})
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	s := Chain[string](m, WithRateLimit[string](limiter))

	if _, err := s.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sync(ctx, nil)
	if !errors.Is(err, domain.ErrSyncFailed) {
		t.Errorf("expected ErrSyncFailed after the burst, got %v", err)
	}
	if reads, _ := m.counts(); reads != 1 {
		t.Errorf("reads = %d, want 1", reads)
	}
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	m := newMockSync(map[string]string{})
	s := Chain[string](m, WithLogging[string]("users", log))

	ctx := logger.WithRequestID(context.Background(), "req-1")
	proposed := domain.NewVersionedTable(1, map[string]string{"a": "1"})
	if _, err := s.Sync(ctx, &proposed); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"msg":"sync"`, `"table":"users"`, `"op":"commit"`, `"request_id":"req-1"`, `"version":2`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}

	buf.Reset()
	m.readErr = errors.New("down")
	if _, err := s.Sync(ctx, nil); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), "down") {
		t.Errorf("failure should be logged at warn: %s", buf.String())
	}
}
