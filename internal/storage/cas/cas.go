// Package cas implements versioned compare-and-swap commits of whole tables.
//
// A Record holds the current canonical table and a bounded history of
// previously committed versions. Commit applies a proposed table to a Record
// under a Policy and reports the Outcome. Every backend stores Records and
// delegates the commit decision here, so all backends resolve conflicts the
// same way.
package cas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// DefaultHistoryLimit is the number of superseded versions kept for merging.
const DefaultHistoryLimit = 16

// Policy decides what happens to a proposal derived from a version that is no
// longer current.
type Policy int

const (
	// Reject keeps the current table and returns it unchanged.
	Reject Policy = iota
	// LastWriterWins replaces the current table with the proposal.
	LastWriterWins
	// Merge applies the proposal's changes on top of the current table when
	// they touch no key changed since the proposal's base version.
	Merge
)

// String returns the config name of the policy.
func (p Policy) String() string {
	switch p {
	case Reject:
		return "reject"
	case LastWriterWins:
		return "last-writer-wins"
	case Merge:
		return "merge"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a config name. The empty string is Reject.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return Reject, nil
	case "last-writer-wins", "lww":
		return LastWriterWins, nil
	case "merge":
		return Merge, nil
	default:
		return Reject, domain.ErrInvalidArgument.WithDetails("unknown conflict policy: " + s)
	}
}

// Outcome reports how a commit was resolved.
type Outcome int

const (
	// Accepted means the proposal was based on the current version and was
	// installed as is.
	Accepted Outcome = iota
	// Rejected means the current table was kept.
	Rejected
	// Overwritten means a stale proposal replaced the current table.
	Overwritten
	// Merged means a stale proposal was merged into the current table.
	Merged
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Overwritten:
		return "overwritten"
	case Merged:
		return "merged"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Changed reports whether the commit produced a new version.
func (o Outcome) Changed() bool {
	return o != Rejected
}

// Record is the stored state of one table.
type Record[T any] struct {
	Current domain.Table[T]   `json:"current"`
	History []domain.Table[T] `json:"history,omitempty"`
}

// Engine applies commits under a policy.
//
// Equal compares row values; nil means reflect.DeepEqual.
type Engine[T any] struct {
	Policy       Policy
	HistoryLimit int
	Equal        func(a, b T) bool
}

// Commit applies proposed to rec and returns the resulting record.
//
// The returned record's Current is the canonical table a synchronizer must
// report. rec is never modified.
func (e Engine[T]) Commit(rec Record[T], proposed domain.Table[T]) (Record[T], Outcome) {
	cur := rec.Current

	if proposed.Version() == cur.Version() {
		return e.install(rec, proposed.Rows()), Accepted
	}

	switch e.Policy {
	case LastWriterWins:
		return e.install(rec, proposed.Rows()), Overwritten

	case Merge:
		base, ok := rec.find(proposed.Version())
		if !ok {
			return rec, Rejected
		}
		rows, ok := e.merge(base, cur, proposed)
		if !ok {
			return rec, Rejected
		}
		return e.install(rec, rows), Merged

	default:
		return rec, Rejected
	}
}

// install makes rows the next version and pushes the old current into the
// history.
func (e Engine[T]) install(rec Record[T], rows map[string]T) Record[T] {
	limit := e.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	history := make([]domain.Table[T], 0, len(rec.History)+1)
	history = append(history, rec.History...)
	history = append(history, rec.Current)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	return Record[T]{
		Current: domain.NewVersionedTable(rec.Current.Version()+1, rows),
		History: history,
	}
}

func (r Record[T]) find(version uint64) (domain.Table[T], bool) {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Version() == version {
			return r.History[i], true
		}
	}
	return domain.Table[T]{}, false
}

// merge applies the changes from base to ours on top of theirs. It fails if
// a key changed on both sides to different results.
func (e Engine[T]) merge(base, theirs, ours domain.Table[T]) (map[string]T, bool) {
	ourChanges := e.diff(base, ours)
	theirChanges := e.diff(base, theirs)

	for key, mine := range ourChanges {
		other, ok := theirChanges[key]
		if !ok {
			continue
		}
		if mine.deleted != other.deleted {
			return nil, false
		}
		if !mine.deleted && !e.equal(mine.value, other.value) {
			return nil, false
		}
	}

	rows := theirs.Rows()
	for key, c := range ourChanges {
		if c.deleted {
			delete(rows, key)
		} else {
			rows[key] = c.value
		}
	}
	return rows, true
}

type change[T any] struct {
	value   T
	deleted bool
}

func (e Engine[T]) diff(from, to domain.Table[T]) map[string]change[T] {
	changes := make(map[string]change[T])
	for _, key := range from.Keys() {
		old, _ := from.Get(key)
		now, ok := to.Get(key)
		switch {
		case !ok:
			changes[key] = change[T]{deleted: true}
		case !e.equal(old, now):
			changes[key] = change[T]{value: now}
		}
	}
	for _, key := range to.Keys() {
		if !from.Has(key) {
			v, _ := to.Get(key)
			changes[key] = change[T]{value: v}
		}
	}
	return changes
}

func (e Engine[T]) equal(a, b T) bool {
	if e.Equal == nil {
		return reflect.DeepEqual(a, b)
	}
	return e.Equal(a, b)
}

// RawEngine returns an engine over JSON-encoded rows, comparing encodings
// byte for byte.
func RawEngine(policy Policy, historyLimit int) Engine[json.RawMessage] {
	return Engine[json.RawMessage]{
		Policy:       policy,
		HistoryLimit: historyLimit,
		Equal:        func(a, b json.RawMessage) bool { return bytes.Equal(a, b) },
	}
}
