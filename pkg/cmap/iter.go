package cmap

import (
	"iter"
	"slices"
)

// All returns an iterator over a copy of each shard, so the loop body may
// write to the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, shard := range m.shards {
			shard.mu.RLock()
			items := make(map[K]V, len(shard.items))
			for k, v := range shard.items {
				items[k] = v
			}
			shard.mu.RUnlock()

			for k, v := range items {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

// Keys returns all keys in sorted order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k := range shard.items {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	slices.Sort(keys)
	return keys
}
