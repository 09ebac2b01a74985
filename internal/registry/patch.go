package registry

import (
	"bytes"
	"encoding/json"
	"errors"
)

var jsonNull = []byte("null")

// Optional is a field that is either absent or carries a value.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON is only invoked when the key is present. Null is rejected
// because the underlying column cannot be cleared.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return errors.New("value must not be null")
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// Nullable is a field that is absent, explicitly null, or carries a value.
type Nullable[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Value returns a present, non-null Nullable.
func Value[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: v}
}

// Null returns a present Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true, Null: true}
}

// UnmarshalJSON is only invoked when the key is present, which is what lets
// an omitted key differ from an explicit null.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Null = true
		var zero T
		n.Value = zero
		return nil
	}
	n.Null = false
	return json.Unmarshal(data, &n.Value)
}

// Pointer returns nil for null and a pointer to the value otherwise.
func (n Nullable[T]) Pointer() *T {
	if n.Null {
		return nil
	}
	v := n.Value
	return &v
}

// Patch is a partial update of a ClusterRecord. Absent fields are left
// untouched; Icon and Description can also be cleared with an explicit null.
type Patch struct {
	Name        Optional[string]   `json:"name"`
	Icon        Nullable[string]   `json:"icon"`
	Description Nullable[string]   `json:"description"`
	Tags        Optional[[]string] `json:"tags"`
}

// ParsePatch decodes a JSON object into a Patch.
func ParsePatch(data []byte) (Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return !p.Name.Set && !p.Icon.Set && !p.Description.Set && !p.Tags.Set
}

// Apply returns rec with the patch merged in.
func (p Patch) Apply(rec ClusterRecord) ClusterRecord {
	if p.Name.Set {
		rec.Name = p.Name.Value
	}
	if p.Icon.Set {
		rec.Icon = p.Icon.Pointer()
	}
	if p.Description.Set {
		rec.Description = p.Description.Pointer()
	}
	if p.Tags.Set {
		rec.Tags = append(Tags{}, p.Tags.Value...)
	}
	return rec
}
