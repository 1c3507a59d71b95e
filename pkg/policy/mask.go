package policy

import "strings"

// FieldMask records which configurable policy properties a layer or
// contribution actually specified. An unset bit means "this layer expressed no
// opinion", never "explicitly cleared".
type FieldMask uint8

// One flag per configurable policy property.
const (
	FieldDuration FieldMask = 1 << iota
	FieldTags
	FieldKeyStrategy
	FieldVersion
	FieldRequireIdempotent
	FieldMetadata

	// FieldsNone is the empty mask.
	FieldsNone FieldMask = 0

	// FieldsAll covers every configurable property.
	FieldsAll = FieldDuration | FieldTags | FieldKeyStrategy | FieldVersion |
		FieldRequireIdempotent | FieldMetadata
)

var fieldNames = []struct {
	field FieldMask
	name  string
}{
	{FieldDuration, "duration"},
	{FieldTags, "tags"},
	{FieldKeyStrategy, "key_strategy"},
	{FieldVersion, "version"},
	{FieldRequireIdempotent, "require_idempotent"},
	{FieldMetadata, "metadata"},
}

// Has reports whether every bit in fields is set in the mask.
func (m FieldMask) Has(fields FieldMask) bool {
	return m&fields == fields
}

// With returns a copy of the mask with the given bits set.
func (m FieldMask) With(fields FieldMask) FieldMask {
	return m | fields
}

// Without returns a copy of the mask with the given bits cleared.
func (m FieldMask) Without(fields FieldMask) FieldMask {
	return m &^ fields
}

// IsEmpty reports whether no field bits are set.
func (m FieldMask) IsEmpty() bool {
	return m&FieldsAll == 0
}

// String renders the mask as a comma-separated list of field names, or "none".
func (m FieldMask) String() string {
	if m.IsEmpty() {
		return "none"
	}
	parts := make([]string, 0, len(fieldNames))
	for _, fn := range fieldNames {
		if m.Has(fn.field) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseFieldMask converts a comma-separated list of field names (the format
// produced by String) back into a mask. Unknown names are ignored.
func ParseFieldMask(s string) FieldMask {
	var m FieldMask
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		for _, fn := range fieldNames {
			if part == fn.name {
				m = m.With(fn.field)
			}
		}
	}
	return m
}

// InferMask derives a field mask from the populated properties of a policy.
// It is used when a source supplies a policy without an explicit mask: any
// non-zero property is treated as set. A source that needs to distinguish
// "set to the zero value" from "not set" must supply an explicit mask.
func InferMask(p Policy) FieldMask {
	var m FieldMask
	if p.Duration != nil {
		m = m.With(FieldDuration)
	}
	if len(p.Tags) > 0 {
		m = m.With(FieldTags)
	}
	if p.KeyStrategy != "" {
		m = m.With(FieldKeyStrategy)
	}
	if p.Version != nil {
		m = m.With(FieldVersion)
	}
	if p.RequireIdempotent != nil {
		m = m.With(FieldRequireIdempotent)
	}
	if len(p.Metadata) > 0 {
		m = m.With(FieldMetadata)
	}
	return m
}
