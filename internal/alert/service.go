package alert

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier delivers the acknowledgment back to the requester after a winning
// claim. Implementations must be duplicate-tolerant: the backfill re-invokes
// it for responded alerts whose acknowledgment never persisted.
type Notifier interface {
	ClaimAck(ctx context.Context, recipientID, recipientEmail, alertID, message, estimatedArrival string) error
}

const publishLockStripes = 32

// publishLocks serialize a store transition with its bus publish per alert.
// Without this a resolve could publish its remove delta before the claim it
// follows publishes the responded upsert, and subscribers would see the alert
// come back from the dead.
type publishLocks [publishLockStripes]sync.Mutex

func (l *publishLocks) forAlert(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &l[h.Sum32()%publishLockStripes]
}

// Service coordinates the alert lifecycle: ingestion, the claim protocol and
// the resolve transition, publishing every change to the bus.
type Service struct {
	store    Store
	bus      *Bus
	notifier Notifier
	logger   *zap.Logger
	pub      publishLocks
}

func NewService(store Store, bus *Bus, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{store: store, bus: bus, notifier: notifier, logger: logger}
}

// Create stores a new pending alert and fans it out to subscribed admins.
// Every call produces a distinct alert; duplicate-press protection is a
// client affordance.
func (s *Service) Create(ctx context.Context, requester Requester, location, note string) (*Alert, error) {
	if requester.ID == "" {
		return nil, fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	if !requester.Role.Valid() {
		return nil, fmt.Errorf("%w: requester role must be student or employee", ErrValidation)
	}
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrValidation)
	}

	a := &Alert{
		ID:        primitive.NewObjectID(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		Requester: requester,
		Location:  location,
		Note:      note,
	}

	mu := s.pub.forAlert(a.ID.Hex())
	mu.Lock()
	if err := s.store.Insert(ctx, a); err != nil {
		mu.Unlock()
		return nil, err
	}
	s.bus.Publish(Delta{Kind: DeltaUpsert, AlertID: a.ID.Hex(), Alert: a})
	mu.Unlock()

	s.logger.Info("alert created",
		zap.String("alert_id", a.ID.Hex()),
		zap.String("location", a.Location),
		zap.String("requester_role", string(requester.Role)))
	return a, nil
}

func claimMessage(responderName, location string) string {
	return fmt.Sprintf("%s is responding to your emergency at %s.", responderName, location)
}

// Claim attempts the pending -> responded transition for one admin. Exactly
// one concurrent caller wins; the rest get ErrAlreadyClaimed along with the
// current alert so their UI can show the winner. The requester notification
// is dispatched synchronously as part of the winning claim.
func (s *Service) Claim(ctx context.Context, alertID string, responder Responder, estimatedArrival string) (*Alert, error) {
	if responder.ID == "" {
		return nil, fmt.Errorf("%w: responder id is required", ErrValidation)
	}
	responder.RespondedAt = time.Now().UTC()
	responder.EstimatedArrival = estimatedArrival

	mu := s.pub.forAlert(alertID)
	mu.Lock()
	updated, err := s.store.ClaimPending(ctx, alertID, responder)
	if err != nil {
		mu.Unlock()
		return updated, err
	}
	s.bus.Publish(Delta{Kind: DeltaUpsert, AlertID: alertID, Alert: updated})
	mu.Unlock()

	s.logger.Info("alert claimed",
		zap.String("alert_id", alertID),
		zap.String("responder", responder.Name),
		zap.String("eta", estimatedArrival))

	message := claimMessage(responder.Name, updated.Location)
	if err := s.notifier.ClaimAck(ctx, updated.Requester.ID, updated.Requester.Email, alertID, message, estimatedArrival); err != nil {
		// The claim is already durable and must not be rolled back over a
		// notification failure. DispatchMissedAcks recreates the record on
		// the next sweep; delivery of a persisted ack is retried the same
		// way.
		s.logger.Error("claim acknowledgment dispatch failed",
			zap.String("alert_id", alertID),
			zap.Error(err))
	}
	return updated, nil
}

// DispatchMissedAcks re-invokes the notifier for every responded alert. The
// dispatcher keeps at most one acknowledgment per alert, so repeat calls only
// fill the gap left when the persist inside a claim failed.
func (s *Service) DispatchMissedAcks(ctx context.Context) error {
	alerts, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, a := range alerts {
		if a.Status != StatusResponded || a.Responder == nil {
			continue
		}
		message := claimMessage(a.Responder.Name, a.Location)
		if err := s.notifier.ClaimAck(ctx, a.Requester.ID, a.Requester.Email, a.ID.Hex(),
			message, a.Responder.EstimatedArrival); err != nil {
			s.logger.Warn("acknowledgment backfill failed",
				zap.String("alert_id", a.ID.Hex()),
				zap.Error(err))
		}
	}
	return nil
}

// Resolve performs the terminal responded -> resolved transition. The alert
// leaves the active set but remains queryable for audit.
func (s *Service) Resolve(ctx context.Context, alertID string, resolver Resolution) (*Alert, error) {
	if resolver.ResolverID == "" {
		return nil, fmt.Errorf("%w: resolver id is required", ErrValidation)
	}
	resolver.ResolvedAt = time.Now().UTC()

	mu := s.pub.forAlert(alertID)
	mu.Lock()
	updated, err := s.store.ResolveResponded(ctx, alertID, resolver)
	if err != nil {
		mu.Unlock()
		return updated, err
	}
	s.bus.Publish(Delta{Kind: DeltaRemove, AlertID: alertID})
	mu.Unlock()

	s.logger.Info("alert resolved",
		zap.String("alert_id", alertID),
		zap.String("resolver", resolver.ResolverName))
	return updated, nil
}

// Active returns the current pending and responded alerts, newest first.
func (s *Service) Active(ctx context.Context) ([]*Alert, error) {
	return s.store.ListActive(ctx)
}

// Get returns one alert regardless of status.
func (s *Service) Get(ctx context.Context, alertID string) (*Alert, error) {
	return s.store.FindByID(ctx, alertID)
}

// Subscribe opens a live view of the active alert set. The subscription
// starts with a snapshot and then receives a delta per mutation until Close.
func (s *Service) Subscribe(ctx context.Context) (*Subscription, error) {
	return s.bus.Subscribe(func() ([]*Alert, error) {
		return s.store.ListActive(ctx)
	})
}
