// Package static provides a fixed, snapshot-only policy source built through
// a fluent builder. It serves the declarative-metadata and startup
// configuration roles: policies known before the process starts serving.
package static

import (
	"context"
	"time"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// Builder accumulates per-method policies for a static source.
type Builder struct {
	sourceID  string
	snapshots []policy.Snapshot
}

// New starts a builder for a static source with the given source id.
func New(sourceID string) *Builder {
	return &Builder{sourceID: sourceID}
}

// Method starts configuring the policy for one method id.
func (b *Builder) Method(methodID string) *MethodBuilder {
	return &MethodBuilder{builder: b, methodID: methodID}
}

// Build finalizes the source. The builder must not be reused afterwards.
func (b *Builder) Build() *Source {
	return &Source{
		id:        b.sourceID,
		snapshots: append([]policy.Snapshot(nil), b.snapshots...),
	}
}

// MethodBuilder configures a single method's policy.
type MethodBuilder struct {
	builder  *Builder
	methodID string
	policy   policy.Policy
	mask     policy.FieldMask
}

// Duration sets the cache entry lifetime.
func (m *MethodBuilder) Duration(d time.Duration) *MethodBuilder {
	m.policy.Duration = policy.DurationPtr(d)
	m.mask = m.mask.With(policy.FieldDuration)
	return m
}

// Tags sets the invalidation tags.
func (m *MethodBuilder) Tags(tags ...string) *MethodBuilder {
	m.policy.Tags = append([]string(nil), tags...)
	m.mask = m.mask.With(policy.FieldTags)
	return m
}

// KeyStrategy sets the key derivation strategy reference.
func (m *MethodBuilder) KeyStrategy(ref string) *MethodBuilder {
	m.policy.KeyStrategy = ref
	m.mask = m.mask.With(policy.FieldKeyStrategy)
	return m
}

// Version sets the cache key version.
func (m *MethodBuilder) Version(v int) *MethodBuilder {
	m.policy.Version = policy.IntPtr(v)
	m.mask = m.mask.With(policy.FieldVersion)
	return m
}

// RequireIdempotent marks whether the operation must be idempotent to cache.
func (m *MethodBuilder) RequireIdempotent(required bool) *MethodBuilder {
	m.policy.RequireIdempotent = policy.BoolPtr(required)
	m.mask = m.mask.With(policy.FieldRequireIdempotent)
	return m
}

// Metadata adds one metadata pair.
func (m *MethodBuilder) Metadata(key, value string) *MethodBuilder {
	if m.policy.Metadata == nil {
		m.policy.Metadata = make(map[string]string)
	}
	m.policy.Metadata[key] = value
	m.mask = m.mask.With(policy.FieldMetadata)
	return m
}

// Done records the method policy and returns to the source builder.
func (m *MethodBuilder) Done() *Builder {
	m.builder.snapshots = append(m.builder.snapshots, policy.Snapshot{
		SourceID: m.builder.sourceID,
		MethodID: m.methodID,
		Policy:   m.policy.Clone(),
		Fields:   m.mask,
	})
	return m.builder
}

// Source is an immutable snapshot-only policy source.
type Source struct {
	id        string
	snapshots []policy.Snapshot
}

// SourceID implements source.Source.
func (s *Source) SourceID() string { return s.id }

// Snapshot implements source.Source.
func (s *Source) Snapshot(_ context.Context) ([]policy.Snapshot, error) {
	out := make([]policy.Snapshot, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = snap
		out[i].Policy = snap.Policy.Clone()
	}
	return out, nil
}

// Watch implements source.Source. A static source never changes: the channel
// stays silent until ctx ends.
func (s *Source) Watch(ctx context.Context) (<-chan policy.Change, error) {
	ch := make(chan policy.Change)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
