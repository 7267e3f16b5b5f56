// Package storagetest holds the contract every synchronization backend must
// satisfy. Backend packages run it from their tests.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
)

// Backend mirrors storage.Backend so backends can be tested without
// importing the storage package.
type Backend interface {
	Sync(ctx context.Context, table string, proposed *domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error)
	Tables(ctx context.Context) ([]string, error)
	Close() error
}

// Factory opens a fresh, empty backend using policy.
type Factory func(t *testing.T, policy cas.Policy) Backend

// Run exercises the synchronization contract against backends built by open.
func Run(t *testing.T, open Factory) {
	t.Run("empty read", func(t *testing.T) { testEmptyRead(t, open) })
	t.Run("commit then read", func(t *testing.T) { testCommitRead(t, open) })
	t.Run("stale proposal rejected", func(t *testing.T) { testReject(t, open) })
	t.Run("last writer wins", func(t *testing.T) { testLastWriterWins(t, open) })
	t.Run("merge", func(t *testing.T) { testMerge(t, open) })
	t.Run("tables", func(t *testing.T) { testTables(t, open) })
	t.Run("concurrent commits", func(t *testing.T) { testConcurrent(t, open) })
}

func rows(kv ...string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = json.RawMessage(kv[i+1])
	}
	return out
}

func asStrings(t domain.Table[json.RawMessage]) map[string]string {
	out := make(map[string]string, t.Len())
	for k, v := range t.Rows() {
		out[k] = string(v)
	}
	return out
}

func mustSync(t *testing.T, b Backend, table string, p *domain.Table[json.RawMessage]) domain.Table[json.RawMessage] {
	t.Helper()
	got, err := b.Sync(context.Background(), table, p)
	if err != nil {
		t.Fatalf("Sync(%s): %v", table, err)
	}
	return got
}

func commit(t *testing.T, b Backend, table string, base uint64, r map[string]json.RawMessage) domain.Table[json.RawMessage] {
	t.Helper()
	p := domain.NewVersionedTable(base, r)
	return mustSync(t, b, table, &p)
}

func testEmptyRead(t *testing.T, open Factory) {
	b := open(t, cas.Reject)
	got := mustSync(t, b, "missing", nil)
	if got.Version() != 0 || got.Len() != 0 {
		t.Errorf("read of unknown table = version %d, %d rows; want empty at 0", got.Version(), got.Len())
	}
}

func testCommitRead(t *testing.T, open Factory) {
	b := open(t, cas.Reject)

	got := commit(t, b, "users", 0, rows("alice", `{"age":30}`))
	if got.Version() != 1 {
		t.Errorf("version after first commit = %d, want 1", got.Version())
	}

	got = commit(t, b, "users", 1, rows("alice", `{"age":31}`, "bob", `{"age":40}`))
	if got.Version() != 2 {
		t.Errorf("version after second commit = %d, want 2", got.Version())
	}

	read := mustSync(t, b, "users", nil)
	want := map[string]string{"alice": `{"age":31}`, "bob": `{"age":40}`}
	if diff := cmp.Diff(want, asStrings(read)); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if read.Version() != 2 {
		t.Errorf("read version = %d, want 2", read.Version())
	}
}

func testReject(t *testing.T, open Factory) {
	b := open(t, cas.Reject)

	commit(t, b, "t", 0, rows("a", "1"))
	commit(t, b, "t", 1, rows("a", "2"))

	got := commit(t, b, "t", 1, rows("a", "3"))
	if got.Version() != 2 {
		t.Errorf("version after stale commit = %d, want 2", got.Version())
	}
	if diff := cmp.Diff(map[string]string{"a": "2"}, asStrings(got)); diff != "" {
		t.Errorf("canonical changed by stale commit (-want +got):\n%s", diff)
	}
}

func testLastWriterWins(t *testing.T, open Factory) {
	b := open(t, cas.LastWriterWins)

	commit(t, b, "t", 0, rows("a", "1"))
	commit(t, b, "t", 1, rows("a", "2"))

	got := commit(t, b, "t", 1, rows("a", "3"))
	if got.Version() != 3 {
		t.Errorf("version = %d, want 3", got.Version())
	}
	if diff := cmp.Diff(map[string]string{"a": "3"}, asStrings(got)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func testMerge(t *testing.T, open Factory) {
	b := open(t, cas.Merge)

	base := commit(t, b, "t", 0, rows("a", "1", "b", "1"))

	// Two writers derive from the same base on disjoint keys.
	commit(t, b, "t", base.Version(), rows("a", "2", "b", "1"))
	got := commit(t, b, "t", base.Version(), rows("a", "1", "b", "2", "c", "1"))

	want := map[string]string{"a": "2", "b": "2", "c": "1"}
	if diff := cmp.Diff(want, asStrings(got)); diff != "" {
		t.Errorf("merged rows mismatch (-want +got):\n%s", diff)
	}

	// Overlapping change to a key that moved since the base is rejected.
	before := got
	got = commit(t, b, "t", base.Version(), rows("a", "9", "b", "1"))
	if got.Version() != before.Version() {
		t.Errorf("conflicting merge committed version %d, want %d kept", got.Version(), before.Version())
	}
}

func testTables(t *testing.T, open Factory) {
	b := open(t, cas.Reject)

	commit(t, b, "b", 0, rows("k", "1"))
	commit(t, b, "a", 0, rows("k", "1"))

	names, err := b.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("Tables mismatch (-want +got):\n%s", diff)
	}
}

// testConcurrent runs read-modify-write increments from several goroutines
// with retry on rejection. No increment may be lost.
func testConcurrent(t *testing.T, open Factory) {
	b := open(t, cas.Reject)
	ctx := context.Background()

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				for {
					cur, err := b.Sync(ctx, "counter", nil)
					if err != nil {
						errs <- err
						return
					}
					p := cur.With(key, json.RawMessage("1"))
					got, err := b.Sync(ctx, "counter", &p)
					if err != nil {
						errs <- err
						return
					}
					if got.Has(key) {
						break
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Sync: %v", err)
	}

	final := mustSync(t, b, "counter", nil)
	if final.Len() != workers*perWorker {
		t.Errorf("rows = %d, want %d", final.Len(), workers*perWorker)
	}
	if final.Version() != workers*perWorker {
		t.Errorf("version = %d, want %d", final.Version(), workers*perWorker)
	}
}
