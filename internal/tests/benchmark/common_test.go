package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/core/service"
	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/internal/storage/memory"
)

// RowCounts defines the table sizes for benchmarking.
var RowCounts = []int{1000, 10000, 50000, 100000}

// SmallRowCounts for quick benchmarks.
var SmallRowCounts = []int{100, 1000, 10000}

// profile is the row type used by the benchmarks.
type profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

func rowKey(i int) string {
	return fmt.Sprintf("user-%06d", i)
}

func newProfile(i int) profile {
	return profile{
		UserID:    rowKey(i),
		Name:      fmt.Sprintf("User %d", i),
		Email:     fmt.Sprintf("user%d@example.com", i),
		Active:    i%3 != 0,
		CreatedAt: 1700000000000 + int64(i),
	}
}

// newBackend returns a quiet in-memory backend.
func newBackend(policy cas.Policy) storage.Backend {
	return memory.New(
		memory.WithPolicy(policy),
		memory.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// prefillTable commits count rows to table in a single version.
func prefillTable(b *testing.B, backend storage.Backend, table string, count int) domain.Table[json.RawMessage] {
	b.Helper()
	rows := make(map[string]json.RawMessage, count)
	for i := 0; i < count; i++ {
		data, err := json.Marshal(newProfile(i))
		if err != nil {
			b.Fatalf("marshal: %v", err)
		}
		rows[rowKey(i)] = data
	}
	proposed := domain.NewVersionedTable(0, rows)
	current, err := backend.Sync(context.Background(), table, &proposed)
	if err != nil {
		b.Fatalf("prefill %s: %v", table, err)
	}
	return current
}

func newProfiles(backend storage.Backend, table string) *service.TableService[profile] {
	return service.NewTableService(storage.Bind[profile](backend, table))
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithRowCounts runs a benchmark function with various table sizes.
func runWithRowCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("rows_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
