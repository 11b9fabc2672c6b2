package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func testNotification(recipientID string) *Notification {
	return &Notification{
		ID:          primitive.NewObjectID(),
		RecipientID: recipientID,
		AlertID:     "alert-1",
		Message:     "help is coming",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPublishIsScopedToRecipient(t *testing.T) {
	streams := NewStreams(zap.NewNop())

	mine := streams.Subscribe("u1")
	defer mine.Close()
	other := streams.Subscribe("u2")
	defer other.Close()

	delivered := streams.Publish(testNotification("u1"))
	assert.Equal(t, 1, delivered)

	n := receive(t, mine)
	assert.Equal(t, "u1", n.RecipientID)

	select {
	case <-other.C():
		t.Fatal("notification leaked to another recipient")
	default:
	}
}

func TestPublishReachesAllStreamsOfRecipient(t *testing.T) {
	streams := NewStreams(zap.NewNop())

	tab1 := streams.Subscribe("u1")
	defer tab1.Close()
	tab2 := streams.Subscribe("u1")
	defer tab2.Close()

	delivered := streams.Publish(testNotification("u1"))
	assert.Equal(t, 2, delivered)
	receive(t, tab1)
	receive(t, tab2)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	streams := NewStreams(zap.NewNop())
	assert.Equal(t, 0, streams.Publish(testNotification("u1")))
}

func TestCloseStopsStream(t *testing.T) {
	streams := NewStreams(zap.NewNop())

	stream := streams.Subscribe("u1")
	stream.Close()
	stream.Close() // idempotent

	assert.Equal(t, 0, streams.Publish(testNotification("u1")))
	_, ok := <-stream.C()
	assert.False(t, ok)
}

func TestSlowStreamIsDropped(t *testing.T) {
	streams := NewStreams(zap.NewNop())

	stream := streams.Subscribe("u1")
	for i := 0; i < streamBufferSize+1; i++ {
		streams.Publish(testNotification("u1"))
	}

	received := 0
	for range stream.C() {
		received++
	}
	assert.Equal(t, streamBufferSize, received)
	require.Equal(t, 0, streams.Publish(testNotification("u1")))
}
