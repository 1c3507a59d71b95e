// Package policy defines the core value types of the cache policy resolution
// pipeline: partially-populated policies, the field masks recording which
// properties a layer actually set, contribution provenance, and the pure merge
// algorithm that computes the effective policy from a set of prioritized layers.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no resolver, transport, or storage coupling)
// - Detached once returned (mutating a returned value never affects another)
// - Testable in isolation without mocks
//
// Other packages (resolver, runtime, source implementations) implement against
// and depend on these types. The dependency direction is always:
//
//	Infrastructure → Policy (CORRECT)
//	Policy → Infrastructure (FORBIDDEN)
package policy
