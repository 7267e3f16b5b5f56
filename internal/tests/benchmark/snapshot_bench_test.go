package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/internal/storage/snapshot"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

// BenchmarkSnapshotCreate benchmarks snapshot creation at various scales.
func BenchmarkSnapshotCreate(b *testing.B) {
	runWithRowCounts(b, SmallRowCounts, func(b *testing.B, count int) {
		backend := newBackend(cas.Reject)
		defer backend.Close()
		prefillTable(b, backend, "profiles", count)

		mgr, err := snapshot.NewManager(snapshot.Config{Dir: b.TempDir(), RetentionCount: 3})
		if err != nil {
			b.Fatalf("Failed to create snapshot manager: %v", err)
		}

		ctx := context.Background()
		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			current, err := backend.Sync(ctx, "profiles", nil)
			if err != nil {
				b.Fatalf("Sync failed: %v", err)
			}
			if _, err := mgr.Create("profiles", current); err != nil {
				b.Fatalf("Create snapshot failed: %v", err)
			}
		}

		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkSnapshotLoad benchmarks snapshot loading at various scales.
func BenchmarkSnapshotLoad(b *testing.B) {
	runWithRowCounts(b, SmallRowCounts, func(b *testing.B, count int) {
		backend := newBackend(cas.Reject)
		defer backend.Close()
		current := prefillTable(b, backend, "profiles", count)

		mgr, err := snapshot.NewManager(snapshot.Config{Dir: b.TempDir(), RetentionCount: 3})
		if err != nil {
			b.Fatalf("Failed to create snapshot manager: %v", err)
		}
		if _, err := mgr.Create("profiles", current); err != nil {
			b.Fatalf("Create snapshot failed: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			loaded, _, err := mgr.Load("profiles")
			if err != nil {
				b.Fatalf("Load failed: %v", err)
			}
			if loaded.Len() != count {
				b.Fatalf("Expected %d rows, got %d", count, loaded.Len())
			}
		}
	})
}

// BenchmarkSnapshotEncrypted compares plaintext, keyed and passphrase
// snapshots of the same table.
func BenchmarkSnapshotEncrypted(b *testing.B) {
	const count = 10000

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := adaptive.New(key)
	if err != nil {
		b.Fatalf("Failed to create cipher: %v", err)
	}

	configs := map[string]func(dir string) snapshot.Config{
		"plain": func(dir string) snapshot.Config {
			return snapshot.Config{Dir: dir, RetentionCount: 1}
		},
		"cipher": func(dir string) snapshot.Config {
			return snapshot.Config{Dir: dir, RetentionCount: 1, Cipher: cipher}
		},
		"passphrase": func(dir string) snapshot.Config {
			return snapshot.Config{Dir: dir, RetentionCount: 1, Passphrase: []byte("correct horse battery")}
		},
	}

	for _, name := range []string{"plain", "cipher", "passphrase"} {
		b.Run(fmt.Sprintf("%s_rows_%d", name, count), func(b *testing.B) {
			backend := newBackend(cas.Reject)
			defer backend.Close()
			current := prefillTable(b, backend, "profiles", count)

			mgr, err := snapshot.NewManager(configs[name](b.TempDir()))
			if err != nil {
				b.Fatalf("Failed to create snapshot manager: %v", err)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				info, err := mgr.Create("profiles", current)
				if err != nil {
					b.Fatalf("Create snapshot failed: %v", err)
				}
				if _, _, err := mgr.LoadFile(info.Path); err != nil {
					b.Fatalf("LoadFile failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkSnapshotCreateLarge benchmarks large snapshot creation.
func BenchmarkSnapshotCreateLarge(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping large snapshot benchmark in short mode")
	}

	runWithRowCounts(b, []int{50000, 100000}, func(b *testing.B, count int) {
		backend := newBackend(cas.Reject)
		defer backend.Close()
		current := prefillTable(b, backend, "profiles", count)

		mgr, err := snapshot.NewManager(snapshot.Config{Dir: b.TempDir(), RetentionCount: 1})
		if err != nil {
			b.Fatalf("Failed to create snapshot manager: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := mgr.Create("profiles", current); err != nil {
				b.Fatalf("Create snapshot failed: %v", err)
			}
		}

		b.StopTimer()
		reportMemory(b, "mem")
	})
}
