package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // register the pure-Go SQLite driver
)

// DefaultSQLiteFile is the database file name below DataDir.
const DefaultSQLiteFile = "tablesync.db"

// SQLiteConfig contains SQLite-specific tuning parameters.
type SQLiteConfig struct {
	// BusyTimeout is how long a writer waits for another process's lock.
	// Default: 5s
	BusyTimeout time.Duration `koanf:"busy_timeout" json:"busy_timeout"`

	// Synchronous is the PRAGMA synchronous level: off, normal, full or extra.
	// Default: full
	Synchronous string `koanf:"synchronous" json:"synchronous" jsonschema:"enum=off,enum=normal,enum=full,enum=extra"`
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout: 5 * time.Second,
		Synchronous: "full",
	}
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID`

// SQLiteEngine implements KVEngine on a single SQLite database in WAL mode.
type SQLiteEngine struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64
}

// NewSQLiteEngine opens or creates the database at path.
func NewSQLiteEngine(path string, cfg SQLiteConfig, logger *slog.Logger) (*SQLiteEngine, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultSQLiteConfig().BusyTimeout
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = DefaultSQLiteConfig().Synchronous
	}
	switch cfg.Synchronous {
	case "off", "normal", "full", "extra":
	default:
		return nil, fmt.Errorf("sqlite: unknown synchronous level %q", cfg.Synchronous)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers in this process; _txlock=immediate
	// serializes them across processes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	logger.Info("sqlite engine started",
		"path", path,
		"synchronous", cfg.Synchronous,
		"busy_timeout", cfg.BusyTimeout)

	return &SQLiteEngine{db: db, path: path, logger: logger}, nil
}

func sqliteDSN(path string, cfg SQLiteConfig) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous("+cfg.Synchronous+")")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Get retrieves a value by key.
func (e *SQLiteEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Scan iterates over keys with a given prefix in key order. Matching rows
// are read before fn is called, so fn may use the engine.
func (e *SQLiteEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}

	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = e.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, end)
	} else {
		rows, err = e.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
	}
	if err != nil {
		return err
	}

	type pair struct{ k, v []byte }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.k, &p.v); err != nil {
			rows.Close()
			return err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(p.k, p.v) {
			break
		}
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Update runs fn inside an immediate transaction, so no retry is needed.
func (e *SQLiteEngine) Update(ctx context.Context, key []byte, fn func(current []byte) ([]byte, error)) error {
	if e.closed.Load() {
		return ErrClosed
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv(k, v) VALUES(?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

// GC checkpoints the write-ahead log and truncates it.
// Returns the bytes the log shrank by.
func (e *SQLiteEngine) GC(ctx context.Context) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	before := fileSize(e.path + "-wal")
	if _, err := e.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return 0, fmt.Errorf("gc: %w", err)
	}
	after := fileSize(e.path + "-wal")

	var reclaimed uint64
	if before > after {
		reclaimed = uint64(before - after)
	}
	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcBytesReclaimed.Add(reclaimed)
	e.logger.Debug("wal checkpoint completed", "bytes_reclaimed", reclaimed)
	return reclaimed, nil
}

// Stats returns storage statistics. ValueLogSize reports the WAL file.
func (e *SQLiteEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var pages, pageSize int64
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pages); err != nil {
		return nil, err
	}
	if err := e.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, err
	}
	wal := fileSize(e.path + "-wal")

	return &KVStats{
		TotalSize:        uint64(pages*pageSize + wal),
		ValueLogSize:     uint64(wal),
		LastGCTime:       e.lastGCTime.Load(),
		GCBytesReclaimed: e.gcBytesReclaimed.Load(),
	}, nil
}

// Close checkpoints the log and closes the database.
func (e *SQLiteEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, err := e.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		e.logger.Warn("final wal checkpoint failed", "error", err)
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	e.logger.Info("sqlite engine shutdown complete")
	return nil
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
