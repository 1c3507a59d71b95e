package resolver

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// subscriber is one registered Watch caller. Delivery is decoupled from
// publishing by an unbounded queue drained by a dedicated goroutine, so a
// slow consumer never blocks the publisher or other subscribers. The queue
// has no capacity bound: a permanently stalled consumer accumulates memory,
// which the subscriberQueueLen gauge makes visible.
type subscriber struct {
	id       string
	methodID string // "" matches every method id
	metrics  *Metrics

	mu    sync.Mutex
	queue []policy.ResolutionResult

	wake chan struct{}
	out  chan policy.ResolutionResult

	done     chan struct{}
	stopOnce sync.Once
}

func newSubscriber(methodID string, metrics *Metrics) *subscriber {
	return &subscriber{
		id:       uuid.NewString(),
		methodID: methodID,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
		out:      make(chan policy.ResolutionResult),
		done:     make(chan struct{}),
	}
}

func (s *subscriber) matches(methodID string) bool {
	return s.methodID == "" || s.methodID == methodID
}

// push enqueues a result without ever blocking the caller.
func (s *subscriber) push(result policy.ResolutionResult) {
	s.mu.Lock()
	s.queue = append(s.queue, result)
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.setSubscriberQueueLen(s.id, depth)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop ends delivery; the drain goroutine closes the out channel.
func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// run drains the queue into the out channel until stopped. Runs on its own
// goroutine, one per subscriber.
func (s *subscriber) run() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			depth := len(s.queue)
			s.mu.Unlock()

			s.metrics.setSubscriberQueueLen(s.id, depth)

			select {
			case s.out <- next:
			case <-s.done:
				return
			}
		}
	}
}
