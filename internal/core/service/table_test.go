package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/tablesync/internal/core/domain"
)

func TestTableService_Get(t *testing.T) {
	ctx := context.Background()
	svc := NewTableService[string](newMockSync(map[string]string{"a": "1"}))

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
	}{
		{"present", "a", "1", nil},
		{"absent", "b", "", domain.ErrMissingKey},
		{"empty key", "", "", domain.ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Get(%q) error = %v, want %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestTableService_Get_ReadFailure(t *testing.T) {
	cause := errors.New("disk on fire")
	m := newMockSync(map[string]string{"a": "1"})
	m.readErr = cause
	svc := NewTableService[string](m)

	_, err := svc.Get(context.Background(), "a")
	if !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestTableService_SetThenGet(t *testing.T) {
	ctx := context.Background()
	m := newMockSync(map[string]int{"keep": 7})
	svc := NewTableService[int](m)

	res, err := svc.Set(ctx, "k", 42)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !res.Applied {
		t.Error("Set() should report Applied")
	}
	if res.Canonical.Version() != 2 {
		t.Errorf("canonical version = %d, want 2", res.Canonical.Version())
	}

	got, err := svc.Get(ctx, "k")
	if err != nil || got != 42 {
		t.Fatalf("Get() = %d, %v; want 42, nil", got, err)
	}

	want := map[string]int{"keep": 7, "k": 42}
	if diff := cmp.Diff(want, m.current().Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestTableService_Set_Overwrite(t *testing.T) {
	ctx := context.Background()
	svc := NewTableService[string](newMockSync(map[string]string{"k": "old"}))

	if _, err := svc.Set(ctx, "k", "new"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, _ := svc.Get(ctx, "k")
	if got != "new" {
		t.Errorf("Get() = %q, want new", got)
	}
}

func TestTableService_Set_RejectedIsReported(t *testing.T) {
	ctx := context.Background()
	m := newMockSync(map[string]string{})
	// Another writer commits between this service's read and its commit.
	m.beforeCommit = func(domain.Table[string]) {
		m.mu.Lock()
		m.table = domain.NewVersionedTable(m.table.Version()+1, map[string]string{"k": "theirs"})
		m.mu.Unlock()
	}
	svc := NewTableService[string](m)

	res, err := svc.Set(ctx, "k", "mine")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if res.Applied {
		t.Error("a rejected commit must not be reported as applied")
	}
	if v, _ := res.Canonical.Get("k"); v != "theirs" {
		t.Errorf("canonical k = %q, want theirs", v)
	}
}

func TestTableService_Set_Failures(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name  string
		setup func(m *mockSync[string])
	}{
		{"read fails", func(m *mockSync[string]) { m.readErr = cause }},
		{"commit fails", func(m *mockSync[string]) { m.commitErr = cause }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockSync(map[string]string{})
			tt.setup(m)
			svc := NewTableService[string](m)

			_, err := svc.Set(context.Background(), "k", "v")
			if !errors.Is(err, domain.ErrMissingKey) {
				t.Fatalf("expected ErrMissingKey, got %v", err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("expected cause, got %v", err)
			}
		})
	}
}

func TestTableService_WithEqual(t *testing.T) {
	type row struct{ N int }
	m := newMockSync(map[string]row{})
	m.override = func(p domain.Table[row]) domain.Table[row] {
		return domain.NewVersionedTable(9, map[string]row{"k": {N: 100}})
	}

	svc := NewTableService[row](m, WithEqual(func(a, b row) bool { return a.N/100 == b.N/100 }))
	res, err := svc.Set(context.Background(), "k", row{N: 150})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !res.Applied {
		t.Error("custom equality should consider 100 and 150 equal")
	}
}

func TestTableService_DeleteThenGet(t *testing.T) {
	ctx := context.Background()
	svc := NewTableService[string](newMockSync(map[string]string{"a": "1", "b": "2"}))

	res, err := svc.Delete(ctx, "a")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !res.Applied {
		t.Error("Delete() should report Applied")
	}

	if _, err := svc.Get(ctx, "a"); !errors.Is(err, domain.ErrMissingKey) {
		t.Errorf("Get after Delete: expected ErrMissingKey, got %v", err)
	}
	if v, err := svc.Get(ctx, "b"); err != nil || v != "2" {
		t.Errorf("unrelated key changed: %q, %v", v, err)
	}
}

func TestTableService_Delete_Absent(t *testing.T) {
	m := newMockSync(map[string]string{"a": "1"})
	svc := NewTableService[string](m)
	before := m.current()

	_, err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	if _, commits := m.counts(); commits != 0 {
		t.Errorf("commits = %d, want 0", commits)
	}
	after := m.current()
	if after.Version() != before.Version() {
		t.Errorf("version changed from %d to %d", before.Version(), after.Version())
	}
	if diff := cmp.Diff(before.Rows(), after.Rows()); diff != "" {
		t.Errorf("table changed (-before +after):\n%s", diff)
	}
}

func TestTableService_Delete_CommitFailure(t *testing.T) {
	cause := errors.New("boom")
	m := newMockSync(map[string]string{"a": "1"})
	m.commitErr = cause
	svc := NewTableService[string](m)

	_, err := svc.Delete(context.Background(), "a")
	if !errors.Is(err, domain.ErrMissingKey) || !errors.Is(err, cause) {
		t.Errorf("expected ErrMissingKey wrapping cause, got %v", err)
	}
}
