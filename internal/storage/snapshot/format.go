package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("TSYNCSNP")

const (
	checksumSize  = 32
	headerVersion = 1
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNotFound         = errors.New("snapshot: not found")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
)

type header struct {
	Version      int    `json:"version"`
	CreatedAt    int64  `json:"created_at"`
	NodeID       string `json:"node_id,omitempty"`
	Table        string `json:"table"`
	TableVersion uint64 `json:"table_version"`
	RowCount     int    `json:"row_count"`
	Encrypted    bool   `json:"encrypted"`
	Cipher       string `json:"cipher,omitempty"`
	Salt         []byte `json:"salt,omitempty"`
}

// encode writes the framed snapshot and its checksum trailer to w.
func encode(w io.Writer, hdr header, data []byte) ([]byte, error) {
	hash := sha256.New()
	mw := io.MultiWriter(w, hash)

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	if _, err := mw.Write(magicBytes); err != nil {
		return nil, fmt.Errorf("snapshot: write magic: %w", err)
	}
	if err := writeBlock(mw, hdrJSON); err != nil {
		return nil, fmt.Errorf("snapshot: write header: %w", err)
	}
	if err := writeBlock(mw, data); err != nil {
		return nil, fmt.Errorf("snapshot: write data: %w", err)
	}

	// The trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	return sum, nil
}

func writeBlock(w io.Writer, b []byte) error {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// decode verifies the checksum of size bytes at r and returns the header and
// the (possibly encrypted) data block.
func decode(r io.ReaderAt, size int64) (header, []byte, []byte, error) {
	var hdr header

	if size < int64(len(magicBytes))+checksumSize {
		return hdr, nil, nil, ErrChecksumMismatch
	}

	bodyLen := size - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(r, bodyLen, checksumSize), expected); err != nil {
		return hdr, nil, nil, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, bodyLen)); err != nil {
		return hdr, nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return hdr, nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(r, 0, bodyLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return hdr, nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return hdr, nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br, bodyLen)
	if err != nil {
		return hdr, nil, nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	if len(hdrJSON) == 0 {
		return hdr, nil, nil, fmt.Errorf("snapshot: empty header")
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return hdr, nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return hdr, nil, nil, fmt.Errorf("snapshot: unsupported header version %d", hdr.Version)
	}

	data, err := readBlock(br, bodyLen)
	if err != nil {
		return hdr, nil, nil, fmt.Errorf("snapshot: read data: %w", err)
	}
	return hdr, data, expected, nil
}

func readBlock(r io.Reader, limit int64) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(n[:])
	if int64(size) > limit {
		return nil, fmt.Errorf("block length %d exceeds file size", size)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
