package resolver

import (
	"sync"
	"time"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// Aggregator owns the merge state for exactly one method id: the
// priority-keyed layer set and the eagerly recomputed effective result.
// Mutations are serialized by a per-instance lock, so different method ids
// never contend with each other.
type Aggregator struct {
	methodID string

	mu      sync.Mutex
	layers  map[int]policy.Layer
	current policy.ResolutionResult
}

// NewAggregator creates an aggregator with no layers. Its current result is
// the all-default policy with empty provenance.
func NewAggregator(methodID string) *Aggregator {
	return &Aggregator{
		methodID: methodID,
		layers:   make(map[int]policy.Layer),
		current:  policy.EmptyResult(methodID, time.Time{}),
	}
}

// MethodID returns the method id this aggregator merges for.
func (a *Aggregator) MethodID() string {
	return a.methodID
}

// SetLayer inserts or replaces the layer at layer.Priority, recomputes the
// effective result, and returns a detached copy of it.
func (a *Aggregator) SetLayer(layer policy.Layer) policy.ResolutionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.layers[layer.Priority] = layer.Clone()
	a.recompute(layer.Timestamp)
	return a.current.Clone()
}

// RemoveLayer deletes the layer at the given priority if present and
// recomputes. The supplied timestamp becomes ResolvedAt so removal-driven
// results are stamped at removal time rather than at read time.
func (a *Aggregator) RemoveLayer(priority int, at time.Time) policy.ResolutionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.layers[priority]; ok {
		delete(a.layers, priority)
		a.recompute(at)
	}
	return a.current.Clone()
}

// Current returns a detached copy of the effective result.
func (a *Aggregator) Current() policy.ResolutionResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

// LayerCount returns the number of layers currently present.
func (a *Aggregator) LayerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.layers)
}

// recompute rebuilds the effective result from the current layer set.
// Caller must hold a.mu.
func (a *Aggregator) recompute(at time.Time) {
	layers := make([]policy.Layer, 0, len(a.layers))
	for _, l := range a.layers {
		layers = append(layers, l)
	}
	a.current = policy.MergeLayers(a.methodID, layers, at)
}
