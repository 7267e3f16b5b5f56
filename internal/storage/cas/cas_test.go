package cas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/tablesync/internal/core/domain"
)

func seed(rows map[string]string) Record[string] {
	return Record[string]{Current: domain.NewVersionedTable(1, rows)}
}

func TestCommit_CurrentVersionAccepted(t *testing.T) {
	for _, p := range []Policy{Reject, LastWriterWins, Merge} {
		t.Run(p.String(), func(t *testing.T) {
			e := Engine[string]{Policy: p}
			rec := seed(map[string]string{"a": "1"})

			next, out := e.Commit(rec, rec.Current.With("b", "2"))
			if out != Accepted {
				t.Fatalf("outcome = %v, want accepted", out)
			}
			if next.Current.Version() != 2 {
				t.Errorf("version = %d, want 2", next.Current.Version())
			}
			if diff := cmp.Diff(map[string]string{"a": "1", "b": "2"}, next.Current.Rows()); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
			if len(next.History) != 1 || next.History[0].Version() != 1 {
				t.Errorf("history should hold version 1, got %d entries", len(next.History))
			}
			if rec.Current.Version() != 1 || len(rec.History) != 0 {
				t.Error("input record was modified")
			}
		})
	}
}

func TestCommit_FromEmpty(t *testing.T) {
	e := Engine[string]{}
	var rec Record[string]

	next, out := e.Commit(rec, domain.NewTable(map[string]string{"k": "v"}))
	if out != Accepted || next.Current.Version() != 1 {
		t.Errorf("outcome = %v, version = %d; want accepted at 1", out, next.Current.Version())
	}
}

func TestCommit_StaleReject(t *testing.T) {
	e := Engine[string]{Policy: Reject}
	rec := seed(map[string]string{"a": "1"})
	stale := rec.Current.With("b", "2")
	rec, _ = e.Commit(rec, rec.Current.With("a", "x"))

	next, out := e.Commit(rec, stale)
	if out != Rejected || out.Changed() {
		t.Fatalf("outcome = %v, want rejected", out)
	}
	if diff := cmp.Diff(rec.Current.Rows(), next.Current.Rows()); diff != "" {
		t.Errorf("current changed (-want +got):\n%s", diff)
	}
	if next.Current.Version() != 2 {
		t.Errorf("version = %d, want 2", next.Current.Version())
	}
}

func TestCommit_StaleLastWriterWins(t *testing.T) {
	e := Engine[string]{Policy: LastWriterWins}
	rec := seed(map[string]string{"a": "1"})
	stale := rec.Current.With("b", "2")
	rec, _ = e.Commit(rec, rec.Current.With("a", "x"))

	next, out := e.Commit(rec, stale)
	if out != Overwritten {
		t.Fatalf("outcome = %v, want overwritten", out)
	}
	if diff := cmp.Diff(map[string]string{"a": "1", "b": "2"}, next.Current.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if next.Current.Version() != 3 {
		t.Errorf("version = %d, want 3", next.Current.Version())
	}
}

func TestCommit_Merge(t *testing.T) {
	base := map[string]string{"a": "1", "b": "1", "c": "1"}

	tests := []struct {
		name    string
		theirs  func(domain.Table[string]) domain.Table[string]
		ours    func(domain.Table[string]) domain.Table[string]
		want    map[string]string
		outcome Outcome
	}{
		{
			name:    "disjoint sets",
			theirs:  func(t domain.Table[string]) domain.Table[string] { return t.With("a", "theirs") },
			ours:    func(t domain.Table[string]) domain.Table[string] { return t.With("b", "ours") },
			want:    map[string]string{"a": "theirs", "b": "ours", "c": "1"},
			outcome: Merged,
		},
		{
			name:    "disjoint insert and delete",
			theirs:  func(t domain.Table[string]) domain.Table[string] { return t.With("new", "x") },
			ours:    func(t domain.Table[string]) domain.Table[string] { return t.Without("c") },
			want:    map[string]string{"a": "1", "b": "1", "new": "x"},
			outcome: Merged,
		},
		{
			name:    "same change on both sides",
			theirs:  func(t domain.Table[string]) domain.Table[string] { return t.With("a", "same") },
			ours:    func(t domain.Table[string]) domain.Table[string] { return t.With("a", "same").With("b", "ours") },
			want:    map[string]string{"a": "same", "b": "ours", "c": "1"},
			outcome: Merged,
		},
		{
			name:    "overlapping set",
			theirs:  func(t domain.Table[string]) domain.Table[string] { return t.With("a", "theirs") },
			ours:    func(t domain.Table[string]) domain.Table[string] { return t.With("a", "ours") },
			want:    map[string]string{"a": "theirs", "b": "1", "c": "1"},
			outcome: Rejected,
		},
		{
			name:    "set against delete",
			theirs:  func(t domain.Table[string]) domain.Table[string] { return t.Without("a") },
			ours:    func(t domain.Table[string]) domain.Table[string] { return t.With("a", "ours") },
			want:    map[string]string{"b": "1", "c": "1"},
			outcome: Rejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Engine[string]{Policy: Merge}
			rec := seed(base)
			proposal := tt.ours(rec.Current)

			rec, out := e.Commit(rec, tt.theirs(rec.Current))
			if out != Accepted {
				t.Fatalf("first writer outcome = %v", out)
			}

			next, out := e.Commit(rec, proposal)
			if out != tt.outcome {
				t.Fatalf("outcome = %v, want %v", out, tt.outcome)
			}
			if diff := cmp.Diff(tt.want, next.Current.Rows()); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommit_MergeMissingBase(t *testing.T) {
	e := Engine[string]{Policy: Merge, HistoryLimit: 1}
	rec := seed(map[string]string{"a": "1"})
	stale := rec.Current.With("b", "2")

	rec, _ = e.Commit(rec, rec.Current.With("a", "2"))
	rec, _ = e.Commit(rec, rec.Current.With("a", "3"))

	if _, out := e.Commit(rec, stale); out != Rejected {
		t.Errorf("outcome = %v, want rejected once the base fell out of history", out)
	}
}

func TestCommit_FutureVersionRejected(t *testing.T) {
	for _, p := range []Policy{Reject, Merge} {
		e := Engine[string]{Policy: p}
		rec := seed(map[string]string{})
		if _, out := e.Commit(rec, domain.NewVersionedTable(99, map[string]string{"x": "1"})); out != Rejected {
			t.Errorf("%v: outcome = %v, want rejected", p, out)
		}
	}
}

func TestCommit_HistoryLimit(t *testing.T) {
	e := Engine[string]{HistoryLimit: 3}
	rec := seed(map[string]string{})
	for i := 0; i < 10; i++ {
		rec, _ = e.Commit(rec, rec.Current.With("k", string(rune('a'+i))))
	}

	if len(rec.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(rec.History))
	}
	var versions []uint64
	for _, h := range rec.History {
		versions = append(versions, h.Version())
	}
	if diff := cmp.Diff([]uint64{8, 9, 10}, versions); diff != "" {
		t.Errorf("history versions mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Reject, false},
		{"reject", Reject, false},
		{"LWW", LastWriterWins, false},
		{"last-writer-wins", LastWriterWins, false},
		{" merge ", Merge, false},
		{"magic", Reject, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v", tt.in, err)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRawEngine_MergeByBytes(t *testing.T) {
	e := RawEngine(Merge, 0)
	rec := RawRecord{Current: domain.NewVersionedTable(1, map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`1`),
	})}
	stale := rec.Current.With("b", json.RawMessage(`"ours"`))
	rec, _ = e.Commit(rec, rec.Current.With("a", json.RawMessage(`"theirs"`)))

	next, out := e.Commit(rec, stale)
	if out != Merged {
		t.Fatalf("outcome = %v, want merged", out)
	}
	if v, _ := next.Current.Get("b"); string(v) != `"ours"` {
		t.Errorf("b = %s", v)
	}
}

func TestRecordEncoding(t *testing.T) {
	e := RawEngine(Reject, 0)
	var rec RawRecord
	rec, _ = e.Commit(rec, domain.NewTable(map[string]json.RawMessage{"k": json.RawMessage(`{"n":1}`)}))

	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if got.Current.Version() != 1 || len(got.History) != 1 {
		t.Errorf("decoded version %d with %d history entries", got.Current.Version(), len(got.History))
	}
	if v, _ := got.Current.Get("k"); string(v) != `{"n":1}` {
		t.Errorf("k = %s", v)
	}

	empty, err := DecodeRecord(nil)
	if err != nil || empty.Current.Version() != 0 || empty.Current.Len() != 0 {
		t.Errorf("DecodeRecord(nil) = %+v, %v", empty, err)
	}

	if _, err := DecodeRecord([]byte("{")); err == nil {
		t.Error("expected error for malformed record")
	}
}
