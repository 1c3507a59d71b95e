package source

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// Fanout delivers change events to any number of watchers. Publishing never
// blocks and never drops: each watcher owns an unbounded queue drained by a
// dedicated goroutine, so a reload burst larger than any fixed buffer still
// arrives in full. A consumer that stops reading accumulates memory until
// its context ends.
type Fanout struct {
	mu       sync.Mutex
	watchers map[string]*fanoutWatcher
}

// NewFanout creates a fan-out with no watchers.
func NewFanout() *Fanout {
	return &Fanout{watchers: make(map[string]*fanoutWatcher)}
}

// Watch registers a watcher. The returned channel closes when ctx ends.
func (f *Fanout) Watch(ctx context.Context) <-chan policy.Change {
	w := &fanoutWatcher{
		wake: make(chan struct{}, 1),
		out:  make(chan policy.Change),
		done: make(chan struct{}),
	}
	id := uuid.NewString()

	f.mu.Lock()
	f.watchers[id] = w
	f.mu.Unlock()

	go w.run()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
		w.stop()
	}()

	return w.out
}

// Publish enqueues the changes, in order, for every current watcher.
func (f *Fanout) Publish(changes ...policy.Change) {
	if len(changes) == 0 {
		return
	}

	f.mu.Lock()
	watchers := make([]*fanoutWatcher, 0, len(f.watchers))
	for _, w := range f.watchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w.push(changes)
	}
}

// fanoutWatcher is one registered watcher: an unbounded queue plus the
// goroutine draining it into the out channel.
type fanoutWatcher struct {
	mu    sync.Mutex
	queue []policy.Change

	wake chan struct{}
	out  chan policy.Change

	done     chan struct{}
	stopOnce sync.Once
}

func (w *fanoutWatcher) push(changes []policy.Change) {
	w.mu.Lock()
	w.queue = append(w.queue, changes...)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *fanoutWatcher) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *fanoutWatcher) run() {
	defer close(w.out)

	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			next := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			select {
			case w.out <- next:
			case <-w.done:
				return
			}
		}
	}
}
