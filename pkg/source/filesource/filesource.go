// Package filesource implements a policy source backed by a local YAML file.
// The file is watched for changes; every reload is diffed against the
// previous state and only the differing method ids produce change events.
package filesource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cacheplane/cacheplane/pkg/policy"
	"github.com/cacheplane/cacheplane/pkg/source"
)

const defaultDebounce = 100 * time.Millisecond

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the structured logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSourceID overrides the default source id ("file").
func WithSourceID(id string) Option {
	return func(s *Source) {
		if id != "" {
			s.id = id
		}
	}
}

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.debounce = d
		}
	}
}

type entry struct {
	policy policy.Policy
	mask   policy.FieldMask
}

// Source watches one YAML policy file.
type Source struct {
	id       string
	path     string
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	fanout  *source.Fanout

	mu       sync.RWMutex
	entries  map[string]entry
	loadedAt time.Time
}

// New creates a source watching the given file. A missing file is not an
// error: the source starts empty and picks the file up when it appears.
func New(path string, opts ...Option) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filesource: create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Source{
		id:       "file",
		path:     absPath,
		logger:   slog.Default(),
		debounce: defaultDebounce,
		watcher:  watcher,
		cancel:   cancel,
		fanout:   source.NewFanout(),
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.reload(); err != nil {
		s.logger.Warn("initial policy file load failed", "path", absPath, "error", err)
	}

	// Watch the directory: editors often write a temp file and rename it
	// over the original, which a file-level watch would lose.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("filesource: watch directory: %w", err)
	}

	go s.watchLoop(ctx)

	return s, nil
}

// SourceID implements source.Source.
func (s *Source) SourceID() string { return s.id }

// Path returns the absolute path of the watched file.
func (s *Source) Path() string { return s.path }

// Snapshot implements source.Source.
func (s *Source) Snapshot(_ context.Context) ([]policy.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Snapshot, 0, len(s.entries))
	for methodID, e := range s.entries {
		out = append(out, policy.Snapshot{
			SourceID:  s.id,
			MethodID:  methodID,
			Policy:    e.policy.Clone(),
			Fields:    e.mask,
			Timestamp: s.loadedAt,
		})
	}
	return out, nil
}

// Watch implements source.Source. Every reload's changes are delivered in
// full; the channel closes when ctx ends.
func (s *Source) Watch(ctx context.Context) (<-chan policy.Change, error) {
	return s.fanout.Watch(ctx), nil
}

// Close stops the file watcher. Pending Watch channels close when their
// contexts end.
func (s *Source) Close() error {
	s.cancel()
	return s.watcher.Close()
}

func (s *Source) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(s.debounce, func() {
					if err := s.reload(); err != nil {
						// Keep the previous state on a bad reload.
						s.logger.Error("policy file reload failed", "path", s.path, "error", err)
					}
				})
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("file watcher error", "path", s.path, "error", err)
		}
	}
}

// reload parses the file, swaps in the new state, and emits one change per
// method id whose policy differs from the previous state.
func (s *Source) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	next, err := parseFile(data)
	if err != nil {
		return err
	}

	now := time.Now()

	s.mu.Lock()
	prev := s.entries
	s.entries = next
	s.loadedAt = now
	changes := diffEntries(s.id, prev, next, now)
	// Publish under the lock so consecutive reloads deliver in order.
	s.fanout.Publish(changes...)
	s.mu.Unlock()

	s.logger.Info("policy file loaded", "path", s.path, "policies", len(next), "changes", len(changes))
	return nil
}

// diffEntries computes the changes that transform prev into next.
func diffEntries(sourceID string, prev, next map[string]entry, at time.Time) []policy.Change {
	var changes []policy.Change

	for methodID, e := range next {
		old, existed := prev[methodID]
		switch {
		case !existed:
			changes = append(changes, policy.Change{
				SourceID:  sourceID,
				MethodID:  methodID,
				Policy:    e.policy.Clone(),
				SetMask:   e.mask,
				Reason:    policy.ChangeAdded,
				Timestamp: at,
			})
		case old.mask != e.mask || !old.policy.Equal(e.policy):
			changes = append(changes, policy.Change{
				SourceID:  sourceID,
				MethodID:  methodID,
				Policy:    e.policy.Clone(),
				SetMask:   e.mask,
				Reason:    policy.ChangeUpdated,
				Timestamp: at,
			})
		}
	}

	for methodID := range prev {
		if _, still := next[methodID]; !still {
			changes = append(changes, policy.Change{
				SourceID:  sourceID,
				MethodID:  methodID,
				Reason:    policy.ChangeRemoved,
				Timestamp: at,
			})
		}
	}

	return changes
}
