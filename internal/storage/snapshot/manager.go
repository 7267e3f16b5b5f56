package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/pkg/crypto/adaptive"
)

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

// ErrInvalidTable is returned for table names that cannot be used as a
// directory name.
var ErrInvalidTable = errors.New("snapshot: invalid table name")

// Config configures the snapshot manager.
type Config struct {
	Dir string

	RetentionCount int
	RetentionDays  int

	// Cipher encrypts snapshot data with the node's key.
	Cipher adaptive.Cipher
	// Passphrase takes precedence over Cipher for new snapshots.
	Passphrase []byte
	// RequireEncrypted refuses to load plaintext snapshots.
	RequireEncrypted bool

	NodeID string
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Manager{cfg: cfg}, nil
}

// Info contains metadata about a snapshot.
type Info struct {
	ID           string `json:"id"`
	Table        string `json:"table"`
	TableVersion uint64 `json:"table_version"`
	RowCount     int    `json:"row_count"`
	CreatedAt    int64  `json:"created_at"`
	Size         int64  `json:"size"`
	Path         string `json:"path" table:"wide"`
	Checksum     string `json:"checksum" table:"wide"`
	NodeID       string `json:"node_id,omitempty" table:"wide"`
	Encrypted    bool   `json:"encrypted"`
}

// Create writes a snapshot of table under the given name.
func (m *Manager) Create(name string, table domain.Table[json.RawMessage]) (*Info, error) {
	dir, err := m.tableDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	now := time.Now()
	id := generateID(dir, now)

	data, err := json.Marshal(table.Rows())
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal rows: %w", err)
	}

	c, salt, err := m.sealer()
	if err != nil {
		return nil, fmt.Errorf("snapshot: cipher: %w", err)
	}

	hdr := header{
		Version:      headerVersion,
		CreatedAt:    now.UnixMilli(),
		NodeID:       m.cfg.NodeID,
		Table:        name,
		TableVersion: table.Version(),
		RowCount:     table.Len(),
		Encrypted:    c != nil,
		Salt:         salt,
	}
	if c != nil {
		hdr.Cipher = string(c.Type())
		data, err = c.Encrypt(data, []byte(name))
		if err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}

	tempPath := filepath.Join(dir, id+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	sum, err := encode(file, hdr, data)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &Info{
		ID:           id,
		Table:        name,
		TableVersion: table.Version(),
		RowCount:     table.Len(),
		CreatedAt:    hdr.CreatedAt,
		Size:         stat.Size(),
		Path:         finalPath,
		Checksum:     hex.EncodeToString(sum),
		NodeID:       m.cfg.NodeID,
		Encrypted:    hdr.Encrypted,
	}, nil
}

// Load loads the latest valid snapshot of the named table.
// If the latest snapshot is corrupted, it falls back to older snapshots.
func (m *Manager) Load(name string) (domain.Table[json.RawMessage], *Info, error) {
	snapshots, err := m.List(name)
	if err != nil {
		return domain.Table[json.RawMessage]{}, nil, err
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		table, info, err := m.LoadFile(snapshots[i].Path)
		if err == nil {
			return table, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return domain.Table[json.RawMessage]{}, nil, err
	}

	return domain.Table[json.RawMessage]{}, nil, ErrNoSnapshots
}

// LoadFile reads the snapshot at path, which need not live under Dir.
func (m *Manager) LoadFile(path string) (domain.Table[json.RawMessage], *Info, error) {
	var empty domain.Table[json.RawMessage]

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return empty, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return empty, nil, err
	}

	hdr, data, sum, err := decode(f, stat.Size())
	if err != nil {
		return empty, nil, err
	}

	c, err := m.opener(hdr)
	if err != nil {
		return empty, nil, err
	}
	if c != nil {
		data, err = c.Decrypt(data, []byte(hdr.Table))
		if err != nil {
			return empty, nil, fmt.Errorf("snapshot: decrypt: %w", err)
		}
	}

	var rows map[string]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return empty, nil, fmt.Errorf("snapshot: unmarshal rows: %w", err)
	}
	if len(rows) != hdr.RowCount {
		return empty, nil, fmt.Errorf("snapshot: header declares %d rows, found %d", hdr.RowCount, len(rows))
	}

	info := &Info{
		ID:           strings.TrimSuffix(filepath.Base(path), fileExtension),
		Table:        hdr.Table,
		TableVersion: hdr.TableVersion,
		RowCount:     hdr.RowCount,
		CreatedAt:    hdr.CreatedAt,
		Size:         stat.Size(),
		Path:         path,
		Checksum:     hex.EncodeToString(sum),
		NodeID:       hdr.NodeID,
		Encrypted:    hdr.Encrypted,
	}
	return domain.NewVersionedTable(hdr.TableVersion, rows), info, nil
}

// List lists snapshot files of the named table (metadata only), oldest first.
func (m *Manager) List(name string) ([]*Info, error) {
	dir, err := m.tableDir(name)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileExtension) {
			paths = append(paths, filepath.Join(dir, n))
		}
	}
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:    strings.TrimSuffix(filepath.Base(p), fileExtension),
			Table: name,
			Path:  p,
			Size:  stat.Size(),
		})
	}
	return infos, nil
}

// Tables lists the table names that have a snapshot directory.
func (m *Manager) Tables() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Prune removes snapshots of the named table outside the retention window.
// The newest snapshot is always kept.
func (m *Manager) Prune(name string) error {
	infos, err := m.List(name)
	if err != nil {
		return err
	}
	if len(infos) <= 1 {
		return nil
	}

	keep := make(map[string]struct{}, len(infos))

	if m.cfg.RetentionCount > 0 {
		start := max(len(infos)-m.cfg.RetentionCount, 0)
		for _, info := range infos[start:] {
			keep[info.Path] = struct{}{}
		}
	}

	if m.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range infos {
			st, err := os.Stat(info.Path)
			if err != nil {
				continue
			}
			if st.ModTime().After(cutoff) {
				keep[info.Path] = struct{}{}
			}
		}
	}

	keep[infos[len(infos)-1].Path] = struct{}{}

	for _, info := range infos {
		if _, ok := keep[info.Path]; ok {
			continue
		}
		_ = os.Remove(info.Path)
	}
	return nil
}

func (m *Manager) tableDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return filepath.Join(m.cfg.Dir, name), nil
}

func generateID(dir string, t time.Time) string {
	ts := t.Format("20060102150405")
	seq := 1

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		n := e.Name()
		if !strings.HasPrefix(n, filePrefix+ts+"-") || !strings.HasSuffix(n, fileExtension) {
			continue
		}
		seq++
	}

	return fmt.Sprintf("%s%s-%04d", filePrefix, ts, seq)
}
