package cmap

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{4, 4},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[string, int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetClear(t *testing.T) {
	m := New[string, int]()

	m.Set("key1", 100)
	m.Set("key2", 200)
	m.Set("key1", 150)

	if val, ok := m.Get("key1"); !ok || val != 150 {
		t.Errorf("Get(key1) = (%d, %v), want (150, true)", val, ok)
	}
	if _, ok := m.Get("nonexistent"); ok {
		t.Error("Get(nonexistent) found a value")
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear() = %d, want 0", m.Count())
	}
	if _, ok := m.Get("key2"); ok {
		t.Error("key2 should not exist after Clear()")
	}
}

type tableName string

func TestNamedStringKey(t *testing.T) {
	m := New[tableName, int]()
	m.Set("users", 1)
	if v, ok := m.Get(tableName("users")); !ok || v != 1 {
		t.Errorf("Get(users) = (%d, %v), want (1, true)", v, ok)
	}
}

func TestShardIndexStable(t *testing.T) {
	a := NewWithShards[string, int](8)
	b := NewWithShards[string, int](8)
	for i := 0; i < 100; i++ {
		key := "k" + strconv.Itoa(i)
		if a.shardIndex(key) != b.shardIndex(key) {
			t.Fatalf("shardIndex(%q) differs between maps", key)
		}
		if idx := a.shardIndex(key); idx < 0 || idx >= 8 {
			t.Fatalf("shardIndex(%q) = %d, out of range", key, idx)
		}
	}
}

func TestKeysSpreadAcrossShards(t *testing.T) {
	m := NewWithShards[string, int](4)
	for i := 0; i < 100; i++ {
		m.Set(strconv.Itoa(i), i)
	}

	used := 0
	for _, s := range m.shards {
		if len(s.items) > 0 {
			used++
		}
	}
	if used < 2 {
		t.Errorf("keys landed in %d shards, want a spread", used)
	}
	if m.Count() != 100 {
		t.Errorf("Count() = %d, want 100", m.Count())
	}
}

func TestGetOrCompute(t *testing.T) {
	m := New[string, *int]()
	var calls atomic.Int32
	create := func() *int {
		calls.Add(1)
		v := 7
		return &v
	}

	var wg sync.WaitGroup
	results := make([]*int, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCompute("k", create)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("create called %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("results[%d] is a different value", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[string, int]()
	var wg sync.WaitGroup
	numGoroutines := 50
	numOps := 500

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := strconv.Itoa(base*numOps + j)
				m.Set(key, j)
				m.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != numGoroutines*numOps {
		t.Errorf("Count() = %d, want %d", m.Count(), numGoroutines*numOps)
	}
}
