package override

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

func TestStore_SetGetClear(t *testing.T) {
	s := New("runtime")
	ctx := context.Background()

	err := s.Set(ctx, "Svc.Method", policy.Policy{
		Duration: policy.DurationPtr(30 * time.Second),
		Tags:     []string{"emergency"},
	}, policy.FieldsNone)
	require.NoError(t, err)

	p, mask, ok := s.Get("Svc.Method")
	require.True(t, ok)
	assert.Equal(t, policy.FieldDuration|policy.FieldTags, mask)
	require.NotNil(t, p.Duration)
	assert.Equal(t, 30*time.Second, *p.Duration)

	assert.Equal(t, []string{"Svc.Method"}, s.Methods())

	require.NoError(t, s.Clear(ctx, "Svc.Method"))
	_, _, ok = s.Get("Svc.Method")
	assert.False(t, ok)
	assert.Empty(t, s.Methods())

	// Clearing again is a no-op.
	require.NoError(t, s.Clear(ctx, "Svc.Method"))
}

func TestStore_SetValidation(t *testing.T) {
	s := New("runtime")
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "", policy.Policy{Tags: []string{"a"}}, policy.FieldsNone), ErrBlankMethodID)
	assert.ErrorIs(t, s.Set(ctx, "Svc.Method", policy.Policy{}, policy.FieldsNone), ErrNoFields)
	assert.ErrorIs(t, s.Clear(ctx, ""), ErrBlankMethodID)
}

func TestStore_ExplicitMaskPreserved(t *testing.T) {
	s := New("runtime")

	// An explicit mask allows setting a field to its zero value.
	err := s.Set(context.Background(), "Svc.Method",
		policy.Policy{RequireIdempotent: policy.BoolPtr(false)},
		policy.FieldRequireIdempotent|policy.FieldTags)
	require.NoError(t, err)

	_, mask, ok := s.Get("Svc.Method")
	require.True(t, ok)
	assert.Equal(t, policy.FieldRequireIdempotent|policy.FieldTags, mask)
}

func TestStore_Snapshot(t *testing.T) {
	s := New("runtime")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "Svc.B", policy.Policy{Tags: []string{"b"}}, policy.FieldsNone))
	require.NoError(t, s.Set(ctx, "Svc.A", policy.Policy{Tags: []string{"a"}}, policy.FieldsNone))

	snaps, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "Svc.A", snaps[0].MethodID)
	assert.Equal(t, "Svc.B", snaps[1].MethodID)
	assert.Equal(t, "runtime", snaps[0].SourceID)
	assert.False(t, snaps[0].Timestamp.IsZero())
}

func TestStore_WatchDeliversChanges(t *testing.T) {
	s := New("runtime")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "Svc.Method", policy.Policy{Tags: []string{"a"}}, policy.FieldsNone))
	change := receiveChange(t, ch)
	assert.Equal(t, policy.ChangeAdded, change.Reason)
	assert.Equal(t, "Svc.Method", change.MethodID)
	assert.Equal(t, policy.FieldTags, change.SetMask)

	require.NoError(t, s.Set(ctx, "Svc.Method", policy.Policy{Tags: []string{"b"}}, policy.FieldsNone))
	change = receiveChange(t, ch)
	assert.Equal(t, policy.ChangeUpdated, change.Reason)

	require.NoError(t, s.Clear(ctx, "Svc.Method"))
	change = receiveChange(t, ch)
	assert.Equal(t, policy.ChangeRemoved, change.Reason)
}

func TestStore_BurstOfSetsDeliveredInFull(t *testing.T) {
	s := New("runtime")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	// Nothing reads the channel during the burst; no change may be lost.
	const n = 40
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("Svc.M%02d", i)
		require.NoError(t, s.Set(ctx, id, policy.Policy{Tags: []string{"t"}}, policy.FieldsNone))
	}

	for i := 0; i < n; i++ {
		change := receiveChange(t, ch)
		assert.Equal(t, fmt.Sprintf("Svc.M%02d", i), change.MethodID)
		assert.Equal(t, policy.ChangeAdded, change.Reason)
	}
}

func TestStore_WatchChannelClosesOnCancel(t *testing.T) {
	s := New("runtime")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func receiveChange(t *testing.T, ch <-chan policy.Change) policy.Change {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return policy.Change{}
	}
}
