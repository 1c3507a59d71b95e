package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

func TestFanout_BurstDeliveredInFullAndInOrder(t *testing.T) {
	f := NewFanout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.Watch(ctx)

	// Publish a burst far larger than any fixed channel buffer while the
	// consumer is not receiving yet.
	const n = 100
	changes := make([]policy.Change, n)
	for i := range changes {
		changes[i] = policy.Change{
			MethodID: fmt.Sprintf("Svc.M%03d", i),
			Reason:   policy.ChangeAdded,
		}
	}
	f.Publish(changes...)

	for i := 0; i < n; i++ {
		select {
		case change := <-ch:
			assert.Equal(t, fmt.Sprintf("Svc.M%03d", i), change.MethodID)
		case <-time.After(2 * time.Second):
			t.Fatalf("change %d never arrived", i)
		}
	}
}

func TestFanout_EveryWatcherSeesEveryChange(t *testing.T) {
	f := NewFanout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := f.Watch(ctx)
	b := f.Watch(ctx)

	f.Publish(policy.Change{MethodID: "Svc.Method", Reason: policy.ChangeAdded})

	for _, ch := range []<-chan policy.Change{a, b} {
		select {
		case change := <-ch:
			assert.Equal(t, "Svc.Method", change.MethodID)
		case <-time.After(2 * time.Second):
			t.Fatal("watcher never received the change")
		}
	}
}

func TestFanout_ChannelClosesOnContextEnd(t *testing.T) {
	f := NewFanout()

	ctx, cancel := context.WithCancel(context.Background())
	ch := f.Watch(ctx)
	cancel()

	select {
	case _, open := <-ch:
		require.False(t, open, "channel must close when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}

	// Publishing after the watcher is gone is a no-op.
	f.Publish(policy.Change{MethodID: "Svc.Method", Reason: policy.ChangeAdded})
}
