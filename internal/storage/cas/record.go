package cas

import (
	"encoding/json"
	"fmt"
)

// RawRecord is the form in which backends persist a table.
type RawRecord = Record[json.RawMessage]

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec RawRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a stored record. Empty input is the empty record.
func DecodeRecord(data []byte) (RawRecord, error) {
	var rec RawRecord
	if len(data) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
