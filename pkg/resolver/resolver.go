package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cacheplane/cacheplane/pkg/policy"
	"github.com/cacheplane/cacheplane/pkg/source"
)

// Registration binds a policy source to an integer priority. Higher
// priorities win field-by-field during resolution.
type Registration struct {
	Source   source.Source
	Priority int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the structured logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches a metrics instance. Without it the resolver records
// nothing.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver orchestrates a set of registered policy sources: it bootstraps by
// snapshotting every source once, runs one background watcher per source that
// feeds incremental changes into the right aggregator, and republishes every
// recomputation to subscribers.
type Resolver struct {
	regs    []Registration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	tracer  trace.Tracer

	// initMu gates the one-time bootstrap; concurrent first callers block on
	// the same initialization. It is never taken on the steady-state path.
	initMu      sync.Mutex
	initialized atomic.Bool

	aggMu       sync.RWMutex
	aggregators map[string]*Aggregator

	subMu       sync.Mutex
	subscribers map[string]*subscriber

	watchCtx    context.Context
	watchCancel context.CancelFunc
	wg          sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// New creates a resolver over the given source registrations. The list order
// is the bootstrap snapshot order. At least one registration is required.
func New(regs []Registration, opts ...Option) (*Resolver, error) {
	if len(regs) == 0 {
		return nil, ErrNoSources
	}
	for i, reg := range regs {
		if reg.Source == nil {
			return nil, fmt.Errorf("resolver: registration %d has a nil source", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Resolver{
		regs:        append([]Registration(nil), regs...),
		logger:      slog.Default(),
		now:         time.Now,
		tracer:      otel.Tracer("github.com/cacheplane/cacheplane/pkg/resolver"),
		aggregators: make(map[string]*Aggregator),
		subscribers: make(map[string]*subscriber),
		watchCtx:    ctx,
		watchCancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the effective policy for the given method id. A method id
// never touched by any source resolves to the all-default policy rather than
// an error. The first call (from any goroutine) performs the one-time source
// bootstrap; afterwards Resolve is a non-blocking read.
func (r *Resolver) Resolve(ctx context.Context, methodID string) (policy.ResolutionResult, error) {
	if strings.TrimSpace(methodID) == "" {
		r.metrics.recordResolution("invalid")
		return policy.ResolutionResult{}, ErrBlankMethodID
	}
	if r.isClosed() {
		return policy.ResolutionResult{}, ErrClosed
	}
	if err := r.ensureInitialized(ctx); err != nil {
		return policy.ResolutionResult{}, err
	}

	r.aggMu.RLock()
	agg, ok := r.aggregators[methodID]
	r.aggMu.RUnlock()

	if !ok {
		r.metrics.recordResolution("default")
		return policy.EmptyResult(methodID, r.now()), nil
	}
	r.metrics.recordResolution("resolved")
	return agg.Current(), nil
}

// Watch subscribes to future recomputations. An empty methodID receives every
// recomputation; a non-empty one only results for that method id. The
// returned channel closes when ctx is cancelled or the resolver is closed.
//
// Delivery is queued per subscriber without a capacity bound, so a consumer
// that stops reading accumulates memory until its context is cancelled.
func (r *Resolver) Watch(ctx context.Context, methodID string) (<-chan policy.ResolutionResult, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	if err := r.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	sub := newSubscriber(strings.TrimSpace(methodID), r.metrics)

	r.subMu.Lock()
	r.subscribers[sub.id] = sub
	r.subMu.Unlock()
	r.metrics.subscriberAdded()

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		r.unregister(sub)
	}()

	return sub.out, nil
}

// Close cancels all background watchers, waits for them to finish (treating
// cooperative cancellation as success), and closes every subscriber channel.
// Safe to call more than once.
func (r *Resolver) Close(ctx context.Context) error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	r.closeMu.Unlock()

	r.watchCancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.subMu.Lock()
	subs := make([]*subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.subscribers = make(map[string]*subscriber)
	r.subMu.Unlock()

	for _, sub := range subs {
		sub.stop()
		r.metrics.subscriberRemoved(sub.id)
	}

	return err
}

func (r *Resolver) isClosed() bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	return r.closed
}

// ensureInitialized performs the one-time bootstrap: snapshot every source
// sequentially in registration order, apply the entries silently (no one is
// subscribed yet), then start the per-source watcher loops. A snapshot error
// aborts the whole bootstrap and surfaces to the caller; the next caller
// retries from scratch.
func (r *Resolver) ensureInitialized(ctx context.Context) error {
	if r.initialized.Load() {
		return nil
	}

	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized.Load() {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "resolver.bootstrap",
		trace.WithAttributes(attribute.Int("resolver.sources", len(r.regs))))
	defer span.End()

	// A failed earlier attempt may have applied some sources before
	// aborting; a retry must not inherit those layers.
	r.aggMu.Lock()
	r.aggregators = make(map[string]*Aggregator)
	r.aggMu.Unlock()

	start := time.Now()
	for _, reg := range r.regs {
		sourceID := reg.Source.SourceID()
		snaps, err := reg.Source.Snapshot(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bootstrap failed")
			return fmt.Errorf("resolver: bootstrap snapshot of source %q: %w", sourceID, err)
		}
		for _, snap := range snaps {
			layer := r.layerFromSnapshot(reg, snap)
			r.aggregatorFor(snap.MethodID).SetLayer(layer)
		}
		r.logger.Debug("source snapshot applied",
			"source", sourceID,
			"priority", reg.Priority,
			"entries", len(snaps))
	}

	for _, reg := range r.regs {
		r.wg.Add(1)
		go r.watchSource(reg)
	}

	r.initialized.Store(true)
	r.metrics.observeBootstrap(time.Since(start).Seconds())
	r.logger.Info("resolver initialized", "sources", len(r.regs))
	return nil
}

func (r *Resolver) layerFromSnapshot(reg Registration, snap policy.Snapshot) policy.Layer {
	mask := snap.Fields
	if mask.IsEmpty() {
		mask = policy.InferMask(snap.Policy)
	}
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	sourceID := snap.SourceID
	if sourceID == "" {
		sourceID = reg.Source.SourceID()
	}
	return policy.Layer{
		SourceID:  sourceID,
		Priority:  reg.Priority,
		Policy:    snap.Policy.Clone(),
		Fields:    mask,
		Timestamp: ts,
	}
}

// watchSource consumes one source's live change stream until the stream ends
// or the resolver shuts down. A failure here terminates only this source's
// loop: it is logged and counted, never propagated to other sources or to
// callers. No automatic restart is attempted.
func (r *Resolver) watchSource(reg Registration) {
	defer r.wg.Done()

	sourceID := reg.Source.SourceID()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("source watcher panicked", "source", sourceID, "panic", rec)
			r.metrics.recordWatcherExit(sourceID, "panic")
		}
	}()

	ch, err := reg.Source.Watch(r.watchCtx)
	if err != nil {
		r.logger.Error("source watch failed to start", "source", sourceID, "error", err)
		r.metrics.recordWatcherExit(sourceID, "start_error")
		return
	}

	for {
		select {
		case <-r.watchCtx.Done():
			r.metrics.recordWatcherExit(sourceID, "cancelled")
			return
		case change, ok := <-ch:
			if !ok {
				r.logger.Warn("source change stream ended", "source", sourceID)
				r.metrics.recordWatcherExit(sourceID, "stream_closed")
				return
			}
			r.applyChange(reg, change)
		}
	}
}

// applyChange folds one source change into the method's aggregator and
// publishes the recomputed result.
func (r *Resolver) applyChange(reg Registration, change policy.Change) {
	if change.MethodID == "" {
		r.logger.Warn("dropping change without method id", "source", reg.Source.SourceID())
		return
	}

	ts := change.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	agg := r.aggregatorFor(change.MethodID)

	var result policy.ResolutionResult
	switch change.Reason {
	case policy.ChangeRemoved:
		result = agg.RemoveLayer(reg.Priority, ts)
	default: // added, updated, reloaded
		mask := change.SetMask
		if mask.IsEmpty() {
			mask = policy.InferMask(change.Policy)
		}
		mask = mask.Without(change.ClearMask)
		if mask.IsEmpty() {
			// A source that withdraws every field no longer has a layer.
			result = agg.RemoveLayer(reg.Priority, ts)
			break
		}
		sourceID := change.SourceID
		if sourceID == "" {
			sourceID = reg.Source.SourceID()
		}
		result = agg.SetLayer(policy.Layer{
			SourceID:  sourceID,
			Priority:  reg.Priority,
			Policy:    change.Policy.Clone(),
			Fields:    mask,
			Timestamp: ts,
		})
	}

	r.metrics.recordChange(reg.Source.SourceID(), string(change.Reason))
	r.publish(result)
}

// publish hands the recomputed result to every matching subscriber. The push
// is non-blocking per subscriber.
func (r *Resolver) publish(result policy.ResolutionResult) {
	r.subMu.Lock()
	subs := make([]*subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		if sub.matches(result.MethodID) {
			subs = append(subs, sub)
		}
	}
	r.subMu.Unlock()

	for _, sub := range subs {
		sub.push(result.Clone())
	}
	r.metrics.recordPublish()
}

func (r *Resolver) unregister(sub *subscriber) {
	r.subMu.Lock()
	_, present := r.subscribers[sub.id]
	delete(r.subscribers, sub.id)
	r.subMu.Unlock()

	sub.stop()
	if present {
		r.metrics.subscriberRemoved(sub.id)
	}
}

// aggregatorFor returns the aggregator for a method id, creating it on first
// write. Aggregators are never removed.
func (r *Resolver) aggregatorFor(methodID string) *Aggregator {
	r.aggMu.RLock()
	agg, ok := r.aggregators[methodID]
	r.aggMu.RUnlock()
	if ok {
		return agg
	}

	r.aggMu.Lock()
	defer r.aggMu.Unlock()
	if agg, ok = r.aggregators[methodID]; ok {
		return agg
	}
	agg = NewAggregator(methodID)
	r.aggregators[methodID] = agg
	return agg
}
