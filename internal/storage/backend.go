package storage

import (
	"context"
	"encoding/json"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/core/service"
)

// Backend synchronizes named tables of JSON rows.
//
// Sync follows the service.Synchronizer contract for the named table: a nil
// proposal reads, a proposal commits. Tables that were never written read as
// empty at version 0.
type Backend interface {
	Sync(ctx context.Context, table string, proposed *domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error)

	// Tables lists the names of tables that hold at least one version.
	Tables(ctx context.Context) ([]string, error)

	Close() error
}

// Bind returns a typed synchronizer for one table of b. Rows are encoded as
// JSON. A proposal holding a value that cannot be encoded fails with
// ErrInvalidArgument without reaching the backend, and a stored row that
// does not decode into T fails with ErrSyncFailed.
func Bind[T any](b Backend, table string) service.Synchronizer[T] {
	return service.SyncFunc[T](func(ctx context.Context, proposed *domain.Table[T]) (domain.Table[T], error) {
		var raw *domain.Table[json.RawMessage]
		if proposed != nil {
			enc, err := encodeTable(*proposed)
			if err != nil {
				return domain.Table[T]{}, domain.ErrInvalidArgument.WithDetails("table: " + table).WithCause(err)
			}
			raw = &enc
		}

		canonical, err := b.Sync(ctx, table, raw)
		if err != nil {
			return domain.Table[T]{}, err
		}

		dec, err := decodeTable[T](canonical)
		if err != nil {
			return domain.Table[T]{}, domain.ErrSyncFailed.WithDetails("table: " + table).WithCause(err)
		}
		return dec, nil
	})
}

func encodeTable[T any](t domain.Table[T]) (domain.Table[json.RawMessage], error) {
	rows := make(map[string]json.RawMessage, t.Len())
	for k, v := range t.Rows() {
		b, err := json.Marshal(v)
		if err != nil {
			return domain.Table[json.RawMessage]{}, err
		}
		rows[k] = b
	}
	return domain.NewVersionedTable(t.Version(), rows), nil
}

func decodeTable[T any](t domain.Table[json.RawMessage]) (domain.Table[T], error) {
	rows := make(map[string]T, t.Len())
	for k, raw := range t.Rows() {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return domain.Table[T]{}, err
		}
		rows[k] = v
	}
	return domain.NewVersionedTable(t.Version(), rows), nil
}

// Restore commits rows as the next version of table, replacing whatever the
// table held. It is used to import snapshots.
func Restore(ctx context.Context, b Backend, table string, rows domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error) {
	current, err := b.Sync(ctx, table, nil)
	if err != nil {
		return domain.Table[json.RawMessage]{}, err
	}
	proposal := domain.NewVersionedTable(current.Version(), rows.Rows())
	canonical, err := b.Sync(ctx, table, &proposal)
	if err != nil {
		return domain.Table[json.RawMessage]{}, err
	}
	if canonical.Version() == current.Version() {
		return canonical, domain.ErrVersionConflict.WithDetails("table: " + table)
	}
	return canonical, nil
}
