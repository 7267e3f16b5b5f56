package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// delayGetter returns values after a per-key delay so completion order
// differs from input order.
type delayGetter struct {
	values   map[string]int
	delays   map[string]time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (g *delayGetter) Get(ctx context.Context, key string) (int, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-time.After(g.delays[key]):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	v, ok := g.values[key]
	if !ok {
		return 0, domain.ErrMissingKey.WithDetails("key: " + key)
	}
	return v, nil
}

func TestGetAll_PreservesOrder(t *testing.T) {
	g := &delayGetter{
		values: map[string]int{"a": 1, "b": 2, "c": 3},
		delays: map[string]time.Duration{"a": 30 * time.Millisecond, "b": 10 * time.Millisecond, "c": 0},
	}

	got, err := GetAll[int](context.Background(), g, []string{"a", "b", "c", "a"})
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 1}, got); diff != "" {
		t.Errorf("GetAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetAll_AllOrNothing(t *testing.T) {
	g := &delayGetter{values: map[string]int{"a": 1, "c": 3}}

	got, err := GetAll[int](context.Background(), g, []string{"a", "missing", "c"})
	if !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %v", got)
	}
}

func TestGetAll_NonDomainErrorIsMissingKey(t *testing.T) {
	cause := errors.New("transport")
	getter := getterFunc[int](func(context.Context, string) (int, error) { return 0, cause })
	_, err := GetAll[int](context.Background(), getter, []string{"x"})
	if !errors.Is(err, domain.ErrMissingKey) || !errors.Is(err, cause) {
		t.Errorf("expected ErrMissingKey wrapping cause, got %v", err)
	}
}

func TestGetAll_Empty(t *testing.T) {
	g := &delayGetter{}

	got, err := GetAll[int](context.Background(), g, nil)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if g.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", g.calls.Load())
	}
}

func TestGetAll_WithConcurrency(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f"}
	g := &delayGetter{values: map[string]int{}, delays: map[string]time.Duration{}}
	for i, k := range keys {
		g.values[k] = i
		g.delays[k] = 5 * time.Millisecond
	}

	if _, err := GetAll[int](context.Background(), g, keys, WithConcurrency(2)); err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if peak := g.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestGetAll_OverTableService(t *testing.T) {
	m := newMockSync(map[string]string{"x": "1", "y": "2"})
	svc := NewTableService[string](m)

	got, err := GetAll[string](context.Background(), svc, []string{"y", "x"})
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if diff := cmp.Diff([]string{"2", "1"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if reads, _ := m.counts(); reads != 2 {
		t.Errorf("reads = %d, want one per key", reads)
	}
}

type getterFunc[T any] func(ctx context.Context, key string) (T, error)

func (f getterFunc[T]) Get(ctx context.Context, key string) (T, error) {
	return f(ctx, key)
}
