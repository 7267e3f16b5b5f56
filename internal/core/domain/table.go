package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// Table is an immutable snapshot of one named collection.
//
// The zero value is an empty table at version 0. Tables are safe to share
// between goroutines: every method that "changes" a table returns a new one.
type Table[T any] struct {
	version uint64
	rows    map[string]T
}

// NewTable creates a table at version 0 holding a copy of rows.
func NewTable[T any](rows map[string]T) Table[T] {
	return NewVersionedTable(0, rows)
}

// NewVersionedTable creates a table holding a copy of rows, stamped with version.
// Only synchronization backends should need to stamp versions.
func NewVersionedTable[T any](version uint64, rows map[string]T) Table[T] {
	return Table[T]{version: version, rows: maps.Clone(rows)}
}

// Version returns the version of the canonical snapshot this table was read
// at or derived from.
func (t Table[T]) Version() uint64 {
	return t.version
}

// Get returns the value stored at key.
func (t Table[T]) Get(key string) (T, bool) {
	v, ok := t.rows[key]
	return v, ok
}

// Has reports whether key is present.
func (t Table[T]) Has(key string) bool {
	_, ok := t.rows[key]
	return ok
}

// Len returns the number of rows.
func (t Table[T]) Len() int {
	return len(t.rows)
}

// Keys returns the keys in sorted order.
func (t Table[T]) Keys() []string {
	return slices.Sorted(maps.Keys(t.rows))
}

// Rows returns a copy of the underlying mapping.
func (t Table[T]) Rows() map[string]T {
	rows := maps.Clone(t.rows)
	if rows == nil {
		rows = make(map[string]T)
	}
	return rows
}

// With returns a proposal with key mapped to val and every other key
// unchanged. The proposal keeps the receiver's version.
func (t Table[T]) With(key string, val T) Table[T] {
	rows := make(map[string]T, len(t.rows)+1)
	maps.Copy(rows, t.rows)
	rows[key] = val
	return Table[T]{version: t.version, rows: rows}
}

// Without returns a proposal with key removed. The proposal keeps the
// receiver's version.
func (t Table[T]) Without(key string) Table[T] {
	rows := maps.Clone(t.rows)
	delete(rows, key)
	return Table[T]{version: t.version, rows: rows}
}

// SameRows reports whether both tables hold the same keys with equal values.
// Versions are ignored.
func (t Table[T]) SameRows(other Table[T], equal func(a, b T) bool) bool {
	if len(t.rows) != len(other.rows) {
		return false
	}
	for k, v := range t.rows {
		ov, ok := other.rows[k]
		if !ok || !equal(v, ov) {
			return false
		}
	}
	return true
}

// tableJSON is the wire shape of a table.
type tableJSON[T any] struct {
	Version uint64       `json:"version"`
	Rows    map[string]T `json:"rows"`
}

// MarshalJSON implements json.Marshaler.
func (t Table[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableJSON[T]{Version: t.version, Rows: t.Rows()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Table[T]) UnmarshalJSON(data []byte) error {
	var tj tableJSON[T]
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.version = tj.Version
	t.rows = tj.Rows
	return nil
}
