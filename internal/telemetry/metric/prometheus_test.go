package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.SyncRequests == nil {
		t.Error("SyncRequests is nil")
	}
	if r.SyncDuration == nil {
		t.Error("SyncDuration is nil")
	}
	if r.CommitConflicts == nil {
		t.Error("CommitConflicts is nil")
	}
	if r.Notifications == nil {
		t.Error("Notifications is nil")
	}
	if r.CacheRows == nil {
		t.Error("CacheRows is nil")
	}
}

func TestGlobal(t *testing.T) {
	r1 := Global()
	r2 := Global()
	if r1 != r2 {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() returned nil")
	}

	body := scrape(t, h)
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestSyncMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordSync("users", "read", "ok")
	r.RecordSync("users", "read", "ok")
	r.RecordSync("users", "commit", "error")
	r.ObserveSyncDuration("users", "read", 0.002)
	r.IncCommitConflict("users")

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `tablesync_sync_requests_total{op="read",outcome="ok",table="users"} 2`) {
		t.Error("expected two successful reads")
	}
	if !strings.Contains(body, `tablesync_sync_requests_total{op="commit",outcome="error",table="users"} 1`) {
		t.Error("expected one failed commit")
	}
	if !strings.Contains(body, `tablesync_sync_duration_seconds_count{op="read",table="users"} 1`) {
		t.Error("expected one duration sample")
	}
	if !strings.Contains(body, `tablesync_commit_conflicts_total{table="users"} 1`) {
		t.Error("expected one conflict")
	}
}

func TestReactiveMetrics(t *testing.T) {
	r := NewRegistry()

	r.IncNotification("orders")
	r.IncNotification("orders")
	r.SetCacheRows("orders", 7)

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `tablesync_reactive_notifications_total{table="orders"} 2`) {
		t.Error("expected two notifications")
	}
	if !strings.Contains(body, `tablesync_cache_rows{table="orders"} 7`) {
		t.Error("expected cache_rows 7")
	}
}

func TestCollector(t *testing.T) {
	r := NewRegistry()
	r.Prometheus().MustRegister(NewCollector(func() map[string]int {
		return map[string]int{"a": 3, "b": 0}
	}))

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `tablesync_table_rows{table="a"} 3`) {
		t.Error("expected table_rows for a")
	}
	if !strings.Contains(body, `tablesync_table_rows{table="b"} 0`) {
		t.Error("expected table_rows for b")
	}
}

func TestCollector_NilSource(t *testing.T) {
	r := NewRegistry()
	r.Prometheus().MustRegister(NewCollector(nil))

	body := scrape(t, r.Handler())
	if strings.Contains(body, "tablesync_table_rows{") {
		t.Error("nil source should report no samples")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.RecordSync("t", "commit", "ok")
				r.ObserveSyncDuration("t", "commit", 0.001)
				r.IncNotification("t")
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	body := scrape(t, r.Handler())
	if !strings.Contains(body, `tablesync_sync_requests_total{op="commit",outcome="ok",table="t"} 1000`) {
		t.Error("expected 1000 commits")
	}
}
