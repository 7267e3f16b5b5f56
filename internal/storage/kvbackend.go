package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/storage/cas"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

const tableKeyPrefix = "table/"

// KVBackendOptions configures a KVBackend.
type KVBackendOptions struct {
	Policy       cas.Policy
	HistoryLimit int

	// Cipher encrypts stored records when set. The table key is bound as
	// additional data so a record cannot be moved to another table.
	Cipher adaptive.Cipher

	Logger *slog.Logger
}

// KVBackend stores each table as one cas record in a KVEngine.
type KVBackend struct {
	kv     KVEngine
	engine cas.Engine[json.RawMessage]
	cipher adaptive.Cipher
	logger *slog.Logger
}

// NewKVBackend creates a backend over kv. The backend owns kv and closes it.
func NewKVBackend(kv KVEngine, opts KVBackendOptions) *KVBackend {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &KVBackend{
		kv:     kv,
		engine: cas.RawEngine(opts.Policy, opts.HistoryLimit),
		cipher: opts.Cipher,
		logger: opts.Logger,
	}
}

// Sync implements Backend.
func (b *KVBackend) Sync(ctx context.Context, table string, proposed *domain.Table[json.RawMessage]) (domain.Table[json.RawMessage], error) {
	key := []byte(tableKeyPrefix + table)

	if proposed == nil {
		data, err := b.kv.Get(ctx, key)
		if err != nil && !errors.Is(err, ErrKeyNotFound) {
			return domain.Table[json.RawMessage]{}, syncError(table, err)
		}
		rec, err := b.decode(key, data)
		if err != nil {
			return domain.Table[json.RawMessage]{}, syncError(table, err)
		}
		return rec.Current, nil
	}

	var (
		result  cas.RawRecord
		outcome cas.Outcome
	)
	err := b.kv.Update(ctx, key, func(current []byte) ([]byte, error) {
		rec, err := b.decode(key, current)
		if err != nil {
			return nil, err
		}
		result, outcome = b.engine.Commit(rec, *proposed)
		if !outcome.Changed() {
			return nil, nil
		}
		return b.encode(key, result)
	})
	if err != nil {
		return domain.Table[json.RawMessage]{}, syncError(table, err)
	}

	b.logger.Debug("table commit",
		"table", table,
		"base_version", proposed.Version(),
		"version", result.Current.Version(),
		"outcome", outcome.String())

	return result.Current, nil
}

// Tables implements Backend.
func (b *KVBackend) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := b.kv.Scan(ctx, []byte(tableKeyPrefix), func(key, _ []byte) bool {
		names = append(names, strings.TrimPrefix(string(key), tableKeyPrefix))
		return true
	})
	if err != nil {
		return nil, domain.ErrSyncFailed.WithDetails("list tables").WithCause(err)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the underlying engine.
func (b *KVBackend) Close() error {
	return b.kv.Close()
}

func (b *KVBackend) decode(key, data []byte) (cas.RawRecord, error) {
	if len(data) > 0 && b.cipher != nil {
		plain, err := b.cipher.Decrypt(data, key)
		if err != nil {
			return cas.RawRecord{}, err
		}
		data = plain
	}
	return cas.DecodeRecord(data)
}

func (b *KVBackend) encode(key []byte, rec cas.RawRecord) ([]byte, error) {
	data, err := cas.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if b.cipher != nil {
		return b.cipher.Encrypt(data, key)
	}
	return data, nil
}

func syncError(table string, err error) error {
	return domain.ErrSyncFailed.WithDetails("table: " + table).WithCause(err)
}
