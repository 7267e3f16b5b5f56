package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

// A backend failure surfaces from the table service as ErrMissingKey with
// the backend error kept as the cause.
func TestMissingKey_KeepsBackendCause(t *testing.T) {
	backend := ErrSyncFailed.WithDetails("commit table users").WithCause(io.ErrUnexpectedEOF)
	err := ErrMissingKey.WithDetails("key: alice").WithCause(backend)

	if !errors.Is(err, ErrMissingKey) {
		t.Error("expected errors.Is(err, ErrMissingKey)")
	}
	if !errors.Is(err, ErrSyncFailed) {
		t.Error("backend sentinel should stay reachable")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("root cause should stay reachable")
	}
	if errors.Is(err, ErrMissingTableService) {
		t.Error("ErrMissingKey must not match ErrMissingTableService")
	}

	want := "[TS-TABL-4040] missing key: key: alice ([TS-SYNC-5001] synchronization failed: commit table users (unexpected EOF))"
	if err.Error() != want {
		t.Errorf("Error() =\n%s\nwant\n%s", err.Error(), want)
	}
}

// Resolution failures collapse to ErrMissingTableService whatever the
// nested failure was.
func TestMissingTableService_CollapsesNestedFailure(t *testing.T) {
	nested := ErrMissingKey.WithDetails("key: 2")
	err := fmt.Errorf("resolve groups/2: %w",
		ErrMissingTableService.WithDetails("groups/2").WithCause(nested))

	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should find the DomainError")
	}
	if de.Code != "TS-TABL-4041" {
		t.Errorf("outermost code = %s, want TS-TABL-4041", de.Code)
	}
	if !IsDomainError(err, ErrMissingTableService.Code) {
		t.Error("IsDomainError(TS-TABL-4041) = false")
	}
	if !errors.Is(err, ErrMissingKey) {
		t.Error("nested ErrMissingKey should stay reachable through the cause")
	}
}

func TestDomainError_CopiesLeaveSentinelUntouched(t *testing.T) {
	_ = ErrMissingKey.WithDetails("key: a").WithCause(io.EOF)

	if ErrMissingKey.Details != "" || ErrMissingKey.Cause != nil {
		t.Errorf("sentinel mutated: %+v", ErrMissingKey)
	}
	if got := ErrMissingKey.Error(); got != "[TS-TABL-4040] missing key" {
		t.Errorf("Error() = %q", got)
	}

	withCause := ErrNotLeader.WithCause(io.EOF).WithDetails("leader node-2")
	if withCause.Cause != io.EOF {
		t.Error("WithDetails dropped the cause")
	}
}

func TestIsDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"any domain error", ErrNotLeader, "", true},
		{"matching code", ErrVersionConflict.WithDetails("v3"), "TS-SYNC-4090", true},
		{"other code", ErrInvalidArgument, "TS-SYNC-4090", false},
		{"wrapped", fmt.Errorf("open: %w", ErrSyncFailed), "TS-SYNC-5001", true},
		{"plain error", io.EOF, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDomainError(tt.err, tt.code); got != tt.want {
				t.Errorf("IsDomainError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelCodesAreDistinct(t *testing.T) {
	sentinels := []*DomainError{
		ErrMissingKey, ErrMissingTableService,
		ErrSyncFailed, ErrVersionConflict, ErrNotLeader,
		ErrInvalidArgument,
	}
	seen := make(map[string]bool)
	for _, e := range sentinels {
		if seen[e.Code] {
			t.Errorf("duplicate code %s", e.Code)
		}
		seen[e.Code] = true
		for _, other := range sentinels {
			if other != e && errors.Is(e, other) {
				t.Errorf("%s matches %s", e.Code, other.Code)
			}
		}
	}
}
