// Package cmap provides a sharded concurrent map with string keys.
//
// Keys are spread over a power-of-two number of shards with murmur3, and
// each shard is guarded by its own RWMutex. Iteration locks one shard at a
// time, so it does not observe a consistent view of the whole map.
//
//	m := cmap.New[string, *entry]()
//	e := m.GetOrCompute("users", newEntry)
package cmap
