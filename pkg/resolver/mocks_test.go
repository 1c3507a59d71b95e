package resolver

import (
	"context"
	"sync"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// mockSource is a scripted source for resolver tests: a fixed snapshot set
// plus a hand-fed change stream.
type mockSource struct {
	id string

	mu            sync.Mutex
	snapshots     []policy.Snapshot
	snapshotErr   error
	snapshotCalls int
	watchErr      error

	changes chan policy.Change
}

func newMockSource(id string, snapshots ...policy.Snapshot) *mockSource {
	return &mockSource{
		id:        id,
		snapshots: snapshots,
		changes:   make(chan policy.Change, 16),
	}
}

func (m *mockSource) SourceID() string { return m.id }

func (m *mockSource) Snapshot(_ context.Context) ([]policy.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotCalls++
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return append([]policy.Snapshot(nil), m.snapshots...), nil
}

func (m *mockSource) snapshotCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotCalls
}

func (m *mockSource) Watch(ctx context.Context) (<-chan policy.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchErr != nil {
		return nil, m.watchErr
	}

	out := make(chan policy.Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-m.changes:
				if !ok {
					return
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// emit pushes a change into the live stream.
func (m *mockSource) emit(change policy.Change) {
	change.SourceID = m.id
	m.changes <- change
}

// fail closes the change stream, simulating a source failure mid-watch.
func (m *mockSource) fail() {
	close(m.changes)
}

func (m *mockSource) setSnapshotErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotErr = err
}

func (m *mockSource) setSnapshots(snapshots ...policy.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = snapshots
}
