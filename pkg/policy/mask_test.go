package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldMask_HasWithWithout(t *testing.T) {
	m := FieldsNone.With(FieldDuration).With(FieldTags)

	assert.True(t, m.Has(FieldDuration))
	assert.True(t, m.Has(FieldTags))
	assert.True(t, m.Has(FieldDuration|FieldTags))
	assert.False(t, m.Has(FieldVersion))
	assert.False(t, m.Has(FieldDuration|FieldVersion))

	m = m.Without(FieldDuration)
	assert.False(t, m.Has(FieldDuration))
	assert.True(t, m.Has(FieldTags))
}

func TestFieldMask_String(t *testing.T) {
	tests := []struct {
		name string
		mask FieldMask
		want string
	}{
		{"empty", FieldsNone, "none"},
		{"single", FieldDuration, "duration"},
		{"pair", FieldDuration | FieldTags, "duration,tags"},
		{"all", FieldsAll, "duration,tags,key_strategy,version,require_idempotent,metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mask.String())
		})
	}
}

func TestParseFieldMask_RoundTrip(t *testing.T) {
	for _, mask := range []FieldMask{FieldsNone, FieldTags, FieldDuration | FieldMetadata, FieldsAll} {
		assert.Equal(t, mask, ParseFieldMask(mask.String()))
	}

	// Unknown names are ignored.
	assert.Equal(t, FieldTags, ParseFieldMask("tags,bogus"))
}

func TestInferMask(t *testing.T) {
	assert.Equal(t, FieldsNone, InferMask(Policy{}))

	p := Policy{
		Duration: DurationPtr(5 * time.Minute),
		Tags:     []string{"a"},
		Metadata: map[string]string{"k": "v"},
	}
	assert.Equal(t, FieldDuration|FieldTags|FieldMetadata, InferMask(p))

	p = Policy{
		KeyStrategy:       "sha256",
		Version:           IntPtr(0),
		RequireIdempotent: BoolPtr(false),
	}
	assert.Equal(t, FieldKeyStrategy|FieldVersion|FieldRequireIdempotent, InferMask(p))
}
