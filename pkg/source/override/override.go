// Package override implements the runtime override store: the live,
// operator-facing policy source conventionally registered at the highest
// priority. Every Set or Clear is published to watchers immediately, so an
// override takes effect on the next resolution.
package override

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cacheplane/cacheplane/pkg/policy"
	"github.com/cacheplane/cacheplane/pkg/source"
)

// Sentinel errors for override operations.
var (
	ErrBlankMethodID = errors.New("override: method id is blank")
	ErrNoFields      = errors.New("override: policy sets no fields")
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type entry struct {
	policy policy.Policy
	mask   policy.FieldMask
	setAt  time.Time
}

// Store is an in-memory override source. Safe for concurrent use.
type Store struct {
	id     string
	logger *slog.Logger
	now    func() time.Time

	fanout *source.Fanout

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty override store with the given source id.
func New(sourceID string, opts ...Option) *Store {
	s := &Store{
		id:      sourceID,
		logger:  slog.Default(),
		now:     time.Now,
		fanout:  source.NewFanout(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceID implements source.Source.
func (s *Store) SourceID() string { return s.id }

// Set installs or replaces the override for a method id. An empty mask is
// inferred from the policy's populated fields; a policy that sets nothing is
// rejected rather than silently clearing the override.
func (s *Store) Set(_ context.Context, methodID string, p policy.Policy, mask policy.FieldMask) error {
	if methodID == "" {
		return ErrBlankMethodID
	}
	if mask.IsEmpty() {
		mask = policy.InferMask(p)
	}
	if mask.IsEmpty() {
		return ErrNoFields
	}

	now := s.now()

	s.mu.Lock()
	_, existed := s.entries[methodID]
	s.entries[methodID] = entry{policy: p.Clone(), mask: mask, setAt: now}
	s.mu.Unlock()

	reason := policy.ChangeAdded
	if existed {
		reason = policy.ChangeUpdated
	}
	s.fanout.Publish(policy.Change{
		SourceID:  s.id,
		MethodID:  methodID,
		Policy:    p.Clone(),
		SetMask:   mask,
		Reason:    reason,
		Timestamp: now,
	})

	s.logger.Info("override set", "method", methodID, "fields", mask.String())
	return nil
}

// Clear removes the override for a method id. Clearing an absent override is
// a no-op.
func (s *Store) Clear(_ context.Context, methodID string) error {
	if methodID == "" {
		return ErrBlankMethodID
	}

	s.mu.Lock()
	_, existed := s.entries[methodID]
	delete(s.entries, methodID)
	s.mu.Unlock()

	if !existed {
		return nil
	}

	s.fanout.Publish(policy.Change{
		SourceID:  s.id,
		MethodID:  methodID,
		Reason:    policy.ChangeRemoved,
		Timestamp: s.now(),
	})

	s.logger.Info("override cleared", "method", methodID)
	return nil
}

// Get returns the current override for a method id, if any.
func (s *Store) Get(methodID string) (policy.Policy, policy.FieldMask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[methodID]
	if !ok {
		return policy.Policy{}, policy.FieldsNone, false
	}
	return e.policy.Clone(), e.mask, true
}

// Methods returns the overridden method ids, sorted.
func (s *Store) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot implements source.Source.
func (s *Store) Snapshot(_ context.Context) ([]policy.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Snapshot, 0, len(s.entries))
	for methodID, e := range s.entries {
		out = append(out, policy.Snapshot{
			SourceID:  s.id,
			MethodID:  methodID,
			Policy:    e.policy.Clone(),
			Fields:    e.mask,
			Timestamp: e.setAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodID < out[j].MethodID })
	return out, nil
}

// Watch implements source.Source. Every Set and Clear reaches every watcher;
// the channel closes when ctx ends.
func (s *Store) Watch(ctx context.Context) (<-chan policy.Change, error) {
	return s.fanout.Watch(ctx), nil
}
