package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func testAlert(location string) *Alert {
	return &Alert{
		ID:        primitive.NewObjectID(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		Requester: Requester{ID: "u1", Name: "Jo Cruz", Email: "jo@campus.edu", Role: RoleStudent, RoleRefID: "2021-00123"},
		Location:  location,
		Note:      "Emergency assistance requested",
	}
}

func nextDelta(t *testing.T, sub *Subscription) Delta {
	t.Helper()
	select {
	case d, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delta")
		return Delta{}
	}
}

func emptySnapshot() ([]*Alert, error) { return nil, nil }

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	bus := NewBus(zap.NewNop())
	a := testAlert("Library")
	b := testAlert("Canteen")

	sub, err := bus.Subscribe(func() ([]*Alert, error) { return []*Alert{a, b}, nil })
	require.NoError(t, err)
	defer sub.Close()

	first := nextDelta(t, sub)
	second := nextDelta(t, sub)
	assert.True(t, first.Initial)
	assert.True(t, second.Initial)
	assert.Equal(t, DeltaUpsert, first.Kind)
	assert.Equal(t, a.ID.Hex(), first.AlertID)
	assert.Equal(t, b.ID.Hex(), second.AlertID)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	subA, err := bus.Subscribe(emptySnapshot)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := bus.Subscribe(emptySnapshot)
	require.NoError(t, err)
	defer subB.Close()

	a := testAlert("Library")
	bus.Publish(Delta{Kind: DeltaUpsert, AlertID: a.ID.Hex(), Alert: a})

	for _, sub := range []*Subscription{subA, subB} {
		d := nextDelta(t, sub)
		assert.Equal(t, DeltaUpsert, d.Kind)
		assert.Equal(t, a.ID.Hex(), d.AlertID)
		assert.False(t, d.Initial)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	sub, err := bus.Subscribe(emptySnapshot)
	require.NoError(t, err)
	sub.Close()
	sub.Close() // idempotent

	assert.Equal(t, 0, bus.SubscriberCount())

	a := testAlert("Library")
	bus.Publish(Delta{Kind: DeltaUpsert, AlertID: a.ID.Hex(), Alert: a})

	_, ok := <-sub.C()
	assert.False(t, ok, "channel should be closed after Close")
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := NewBus(zap.NewNop())

	sub, err := bus.Subscribe(emptySnapshot)
	require.NoError(t, err)

	a := testAlert("Library")
	for i := 0; i < subscriberBufferSize+1; i++ {
		bus.Publish(Delta{Kind: DeltaUpsert, AlertID: a.ID.Hex(), Alert: a})
	}

	assert.Equal(t, 0, bus.SubscriberCount())

	// The buffered deltas are still readable, then the channel closes.
	received := 0
	for range sub.C() {
		received++
	}
	assert.Equal(t, subscriberBufferSize, received)
}
