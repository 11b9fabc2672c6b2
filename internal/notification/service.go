package notification

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Emailer is the offline fallback channel. Satisfied by config.EmailService.
type Emailer interface {
	SendEmail(to, subject, body string) error
}

// Service persists claim acknowledgments and delivers them to the
// requester's live streams, falling back to email and the redelivery sweep
// when the requester is offline.
type Service struct {
	repo    Store
	streams *Streams
	email   Emailer
	logger  *zap.Logger
}

func NewService(repo Store, streams *Streams, email Emailer, logger *zap.Logger) *Service {
	return &Service{repo: repo, streams: streams, email: email, logger: logger}
}

// ClaimAck records the acknowledgment for one claimed alert. The record is
// persisted before any delivery attempt, so an offline recipient still
// receives it on their next subscription. Safe to call again for the same
// alert: the backfill replays claims whose persist failed, and an existing
// record makes the replay a no-op.
func (s *Service) ClaimAck(ctx context.Context, recipientID, recipientEmail, alertID, message, estimatedArrival string) error {
	exists, err := s.repo.ExistsForAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("check notification: %w", err)
	}
	if exists {
		return nil
	}

	n := &Notification{
		ID:               primitive.NewObjectID(),
		RecipientID:      recipientID,
		RecipientEmail:   recipientEmail,
		AlertID:          alertID,
		Message:          message,
		EstimatedArrival: estimatedArrival,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if s.streams.Publish(n) > 0 {
		if err := s.repo.MarkDelivered(ctx, n.ID); err != nil {
			// Redelivery is harmless: streams carry idempotent records
			// keyed by id.
			s.logger.Warn("failed to mark notification delivered",
				zap.String("notification_id", n.ID.Hex()), zap.Error(err))
		}
		return nil
	}

	// Recipient has no live stream. Email is best effort; the sweep and the
	// next subscription cover the durable path.
	if recipientEmail != "" {
		if err := s.email.SendEmail(recipientEmail, "Emergency response on the way", n.Message); err != nil {
			s.logger.Warn("notification email fallback failed",
				zap.String("recipient", recipientEmail), zap.Error(err))
		}
	}
	return nil
}

// Subscribe opens a live stream for the recipient and returns their
// undelivered backlog, oldest first. The caller confirms each backlog record
// with ConfirmDelivered once it has actually reached the client; until then
// the sweep keeps retrying, so a failed write never loses the record.
func (s *Service) Subscribe(ctx context.Context, recipientID string) (*Stream, []*Notification, error) {
	stream := s.streams.Subscribe(recipientID)

	backlog, err := s.repo.ListUndeliveredFor(ctx, recipientID)
	if err != nil {
		stream.Close()
		return nil, nil, err
	}
	return stream, backlog, nil
}

// ConfirmDelivered records that a backlog notification reached the client.
func (s *Service) ConfirmDelivered(ctx context.Context, id primitive.ObjectID) {
	if err := s.repo.MarkDelivered(ctx, id); err != nil {
		s.logger.Warn("failed to mark notification delivered",
			zap.String("notification_id", id.Hex()), zap.Error(err))
	}
}

// List returns all of a recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string) ([]*Notification, error) {
	return s.repo.ListByRecipient(ctx, recipientID)
}

// MarkRead sets the explicit read flag on one of the recipient's
// notifications.
func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	return s.repo.MarkRead(ctx, oid, recipientID)
}

// SweepUndelivered retries delivery of persisted notifications whose
// recipient was offline at dispatch time. Called periodically by the
// redelivery sweeper.
func (s *Service) SweepUndelivered(ctx context.Context) {
	undelivered, err := s.repo.ListUndelivered(ctx)
	if err != nil {
		s.logger.Warn("redelivery sweep failed to list notifications", zap.Error(err))
		return
	}
	for _, n := range undelivered {
		if s.streams.Publish(n) == 0 {
			continue
		}
		if err := s.repo.MarkDelivered(ctx, n.ID); err != nil {
			s.logger.Warn("failed to mark swept notification delivered",
				zap.String("notification_id", n.ID.Hex()), zap.Error(err))
		}
	}
}
