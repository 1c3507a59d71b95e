package source

import (
	"context"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// Source exposes one producer of cache policies to the resolver.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Snapshot returns the full point-in-time policy set; it may block on I/O
//   and must honor ctx cancellation.
// - Watch returns a channel of incremental changes. The channel is closed
//   when ctx is cancelled or the source shuts down. A source with no live
//   feed returns a channel that stays silent until closed.
// - Errors: a Snapshot error during resolver bootstrap aborts the bootstrap;
//   after bootstrap, a closed Watch channel simply ends that source's feed.
type Source interface {
	// SourceID identifies this source in provenance records. Stable for the
	// lifetime of the source.
	SourceID() string

	// Snapshot returns every policy the source currently holds.
	Snapshot(ctx context.Context) ([]policy.Snapshot, error)

	// Watch streams incremental policy changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan policy.Change, error)
}

// Conventional registration priorities. The resolver accepts any integers;
// these are the recommended scale (higher wins).
const (
	// PriorityDeclarative is for policies declared alongside the operation
	// definition (annotations, struct tags, generated tables).
	PriorityDeclarative = 10

	// PriorityProgrammatic is for fluent/startup configuration code.
	PriorityProgrammatic = 40

	// PriorityFile is for external configuration files.
	PriorityFile = 50

	// PriorityOverride is for live runtime overrides. Always wins.
	PriorityOverride = 100
)
