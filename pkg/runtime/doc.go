// Package runtime projects a resolution result into the denormalized,
// decision-ready structure cache-execution code consumes: the six core policy
// fields plus runtime-only extras (sliding expiration, refresh-ahead,
// stampede protection, distributed locking) decoded from the reserved
// "runtime." metadata key namespace.
//
// Projections are built on demand and never mutated after construction.
package runtime
