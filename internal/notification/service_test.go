package notification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type memStore struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*Notification
}

func newMemStore() *memStore {
	return &memStore{items: make(map[primitive.ObjectID]*Notification)}
}

func (m *memStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *memStore) ExistsForAlert(ctx context.Context, alertID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.AlertID == alertID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) list(filter func(*Notification) bool, newestFirst bool) []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.items {
		if filter(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error) {
	return m.list(func(n *Notification) bool { return n.RecipientID == recipientID }, true), nil
}

func (m *memStore) ListUndelivered(ctx context.Context) ([]*Notification, error) {
	return m.list(func(n *Notification) bool { return !n.Delivered }, false), nil
}

func (m *memStore) ListUndeliveredFor(ctx context.Context, recipientID string) ([]*Notification, error) {
	return m.list(func(n *Notification) bool { return !n.Delivered && n.RecipientID == recipientID }, false), nil
}

func (m *memStore) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	n.Delivered = true
	n.DeliveredAt = &now
	return nil
}

func (m *memStore) MarkRead(ctx context.Context, id primitive.ObjectID, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

type sentEmail struct {
	to, subject, body string
}

type fakeEmailer struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (f *fakeEmailer) SendEmail(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return nil
}

func (f *fakeEmailer) emails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func newTestService() (*Service, *memStore, *fakeEmailer) {
	store := newMemStore()
	emailer := &fakeEmailer{}
	svc := NewService(store, NewStreams(zap.NewNop()), emailer, zap.NewNop())
	return svc, store, emailer
}

func receive(t *testing.T, stream *Stream) *Notification {
	t.Helper()
	select {
	case n, ok := <-stream.C():
		require.True(t, ok, "stream closed unexpectedly")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestClaimAckDeliversToLiveStream(t *testing.T) {
	svc, store, emailer := newTestService()
	ctx := context.Background()

	stream, backlog, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stream.Close()
	assert.Empty(t, backlog)

	require.NoError(t, svc.ClaimAck(ctx, "u1", "jo@campus.edu", "alert-1", "Admin A is responding to your emergency at Library.", "1 minute"))

	n := receive(t, stream)
	assert.Equal(t, "alert-1", n.AlertID)
	assert.Equal(t, "1 minute", n.EstimatedArrival)
	assert.False(t, n.Read)

	undelivered, err := store.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, undelivered, "delivered notification must not be swept again")

	assert.Empty(t, emailer.emails(), "no email fallback while a live stream exists")
}

func TestClaimAckPersistsForOfflineRecipient(t *testing.T) {
	svc, store, emailer := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "jo@campus.edu", "alert-1", "help is coming", "2 minutes"))

	undelivered, err := store.ListUndelivered(ctx)
	require.NoError(t, err)
	require.Len(t, undelivered, 1)
	assert.Equal(t, "u1", undelivered[0].RecipientID)

	emails := emailer.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "jo@campus.edu", emails[0].to)

	// Next subscription replays the backlog; it counts as delivered only once
	// the caller confirms the write.
	stream, backlog, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stream.Close()
	require.Len(t, backlog, 1)
	assert.Equal(t, "alert-1", backlog[0].AlertID)

	svc.ConfirmDelivered(ctx, backlog[0].ID)

	undelivered, err = store.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, undelivered)
}

func TestBacklogRepeatsUntilConfirmed(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))

	// A subscription that dies before writing the backlog must not consume it.
	stream, backlog, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	stream.Close()

	stream, backlog, err = svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)

	svc.ConfirmDelivered(ctx, backlog[0].ID)
	stream.Close()

	stream, backlog, err = svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stream.Close()
	assert.Empty(t, backlog)
}

func TestClaimAckKeepsOneRecordPerAlert(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))
	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))

	list, err := store.ListByRecipient(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1, "a replayed acknowledgment must not duplicate the record")
}

func TestSweepRedeliversToLateStream(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))

	// Subscribe on the raw hub so the backlog replay in Subscribe is not
	// what delivers it.
	stream := svc.streams.Subscribe("u1")
	defer stream.Close()

	svc.SweepUndelivered(ctx)

	n := receive(t, stream)
	assert.Equal(t, "alert-1", n.AlertID)

	undelivered, err := store.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, undelivered)
}

func TestBacklogIsScopedToRecipient(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))
	require.NoError(t, svc.ClaimAck(ctx, "u2", "", "alert-2", "help is coming", "1 minute"))

	stream, backlog, err := svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stream.Close()
	require.Len(t, backlog, 1)
	assert.Equal(t, "alert-1", backlog[0].AlertID)
}

func TestMarkRead(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClaimAck(ctx, "u1", "", "alert-1", "help is coming", "1 minute"))
	list, err := store.ListByRecipient(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID.Hex()

	assert.ErrorIs(t, svc.MarkRead(ctx, "not-a-hex-id", "u1"), ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, id, "someone-else"), ErrNotFound)
	require.NoError(t, svc.MarkRead(ctx, id, "u1"))

	list, err = store.ListByRecipient(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, list[0].Read)
}
