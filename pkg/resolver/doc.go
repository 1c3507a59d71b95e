// Package resolver implements the policy resolution pipeline: per-method
// aggregators that merge prioritized layers, and the resolver that bootstraps
// registered sources, feeds their live change streams into the right
// aggregator, and fans recomputed results out to subscribers.
//
// The resolver exclusively owns all aggregators and their layers. Every
// ResolutionResult handed to a caller is a detached immutable snapshot.
package resolver
