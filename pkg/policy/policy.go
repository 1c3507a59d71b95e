package policy

import (
	"time"
)

// Policy is a partially-populated cache policy. A property carries meaning
// only when the corresponding bit is set in the owning layer's FieldMask;
// values behind unset bits are ignored by the merge.
type Policy struct {
	// Duration is the cache entry lifetime. Nil when not set.
	Duration *time.Duration

	// Tags are invalidation tags attached to cached entries.
	Tags []string

	// KeyStrategy names the key derivation strategy, as an opaque type
	// reference. Empty when not set.
	KeyStrategy string

	// Version participates in cache key derivation so that bumping it
	// invalidates previously cached entries. Nil when not set.
	Version *int

	// RequireIdempotent restricts caching to idempotent operations.
	RequireIdempotent *bool

	// Metadata carries free-form string pairs. Keys under the "runtime."
	// namespace are decoded by the runtime projection.
	Metadata map[string]string

	// Provenance is the append-only trail of contributions that produced
	// this policy. Populated on merged policies; usually empty on inputs.
	Provenance []Contribution
}

// ContributionKind distinguishes how a source touched a layer.
type ContributionKind string

// Contribution kinds.
const (
	ContributionSet     ContributionKind = "set"
	ContributionRemoved ContributionKind = "removed"
)

// Contribution is an audit record of one source setting or removing fields at
// a point in time. Immutable, append-only per layer.
type Contribution struct {
	SourceID  string
	Fields    FieldMask
	Kind      ContributionKind
	Timestamp time.Time
	Note      string
}

// Clone returns a deep copy of the policy so callers never share mutable
// state with resolver internals.
func (p Policy) Clone() Policy {
	clone := Policy{
		KeyStrategy: p.KeyStrategy,
	}
	if p.Duration != nil {
		d := *p.Duration
		clone.Duration = &d
	}
	if len(p.Tags) > 0 {
		clone.Tags = append([]string(nil), p.Tags...)
	}
	if p.Version != nil {
		v := *p.Version
		clone.Version = &v
	}
	if p.RequireIdempotent != nil {
		b := *p.RequireIdempotent
		clone.RequireIdempotent = &b
	}
	clone.Metadata = cloneStringMap(p.Metadata)
	if len(p.Provenance) > 0 {
		clone.Provenance = append([]Contribution(nil), p.Provenance...)
	}
	return clone
}

// Equal reports value equality of two policies, ignoring provenance.
func (p Policy) Equal(o Policy) bool {
	if !equalDurationPtr(p.Duration, o.Duration) {
		return false
	}
	if len(p.Tags) != len(o.Tags) {
		return false
	}
	for i := range p.Tags {
		if p.Tags[i] != o.Tags[i] {
			return false
		}
	}
	if p.KeyStrategy != o.KeyStrategy {
		return false
	}
	if !equalIntPtr(p.Version, o.Version) {
		return false
	}
	if !equalBoolPtr(p.RequireIdempotent, o.RequireIdempotent) {
		return false
	}
	if len(p.Metadata) != len(o.Metadata) {
		return false
	}
	for k, v := range p.Metadata {
		if ov, ok := o.Metadata[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func equalDurationPtr(a, b *time.Duration) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	clone := make(map[string]string, len(input))
	for k, v := range input {
		clone[k] = v
	}
	return clone
}

// DurationPtr is a convenience constructor for optional durations.
func DurationPtr(d time.Duration) *time.Duration { return &d }

// IntPtr is a convenience constructor for optional ints.
func IntPtr(v int) *int { return &v }

// BoolPtr is a convenience constructor for optional bools.
func BoolPtr(b bool) *bool { return &b }
