package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reference points from a record field into another table's entry.
type Reference struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

// String returns "table/key".
func (r Reference) String() string {
	return r.Table + "/" + r.Key
}

// FieldKind tags the variant held by a Field.
type FieldKind uint8

const (
	// FieldValue holds a literal value.
	FieldValue FieldKind = iota
	// FieldReference holds a Reference to be dereferenced on resolution.
	FieldReference
)

// Field is one field of a Record: either a literal value or a Reference.
//
// The variant is chosen when the field is constructed (Val or Ref), never
// inferred from the shape of the value. A literal map that happens to carry
// "table" and "key" entries stays a literal.
type Field struct {
	kind  FieldKind
	value any
	ref   Reference
}

// Val returns a literal field.
func Val(v any) Field {
	return Field{kind: FieldValue, value: v}
}

// Ref returns a reference field.
func Ref(table, key string) Field {
	return Field{kind: FieldReference, ref: Reference{Table: table, Key: key}}
}

// Kind returns the variant tag.
func (f Field) Kind() FieldKind {
	return f.kind
}

// IsReference reports whether the field holds a Reference.
func (f Field) IsReference() bool {
	return f.kind == FieldReference
}

// Reference returns the held reference, if any.
func (f Field) Reference() (Reference, bool) {
	return f.ref, f.kind == FieldReference
}

// Value returns the held literal, or nil for a reference field.
func (f Field) Value() any {
	if f.kind == FieldReference {
		return nil
	}
	return f.value
}

// fieldJSON is the tagged wire shape: exactly one of Ref or Value is set.
type fieldJSON struct {
	Ref   *Reference      `json:"ref,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.kind == FieldReference {
		ref := f.ref
		return json.Marshal(fieldJSON{Ref: &ref})
	}
	raw, err := json.Marshal(f.value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fieldJSON{Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(data []byte) error {
	var fj fieldJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return err
	}
	switch {
	case fj.Ref != nil && fj.Value != nil:
		return errors.New("field: both ref and value set")
	case fj.Ref != nil:
		if fj.Ref.Table == "" {
			return fmt.Errorf("field: reference without table")
		}
		*f = Field{kind: FieldReference, ref: *fj.Ref}
	default:
		var v any
		if fj.Value != nil {
			if err := json.Unmarshal(fj.Value, &v); err != nil {
				return fmt.Errorf("field: decode value: %w", err)
			}
		}
		*f = Field{kind: FieldValue, value: v}
	}
	return nil
}

// Record is a stored row whose fields may reference other tables.
type Record map[string]Field

// References returns the references held by the record, keyed by field name.
func (r Record) References() map[string]Reference {
	refs := make(map[string]Reference)
	for name, f := range r {
		if ref, ok := f.Reference(); ok {
			refs[name] = ref
		}
	}
	return refs
}

// Object is a fully dereferenced record. Reference fields are replaced by the
// nested Object they point at; literal fields hold their plain value.
type Object map[string]any
