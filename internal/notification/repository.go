package notification

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("notification not found")

// Store is the persistence contract the dispatcher depends on.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ExistsForAlert(ctx context.Context, alertID string) (bool, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error)
	ListUndelivered(ctx context.Context) ([]*Notification, error)
	ListUndeliveredFor(ctx context.Context, recipientID string) ([]*Notification, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID) error
	MarkRead(ctx context.Context, id primitive.ObjectID, recipientID string) error
}

// Repository handles DB operations for notifications.
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new repository for notifications.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection("notifications")}
}

// Create inserts a new notification into the DB.
func (r *Repository) Create(ctx context.Context, n *Notification) error {
	_, err := r.collection.InsertOne(ctx, n)
	return err
}

// ExistsForAlert reports whether an acknowledgment for the alert is already
// recorded. The ack backfill uses it to stay idempotent.
func (r *Repository) ExistsForAlert(ctx context.Context, alertID string) (bool, error) {
	opts := options.Count().SetLimit(1)
	count, err := r.collection.CountDocuments(ctx, bson.M{"alert_id": alertID}, opts)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByRecipient fetches a recipient's notifications, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListUndelivered fetches notifications that never reached a live stream,
// oldest first so redelivery preserves creation order.
func (r *Repository) ListUndelivered(ctx context.Context) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"delivered": false}, opts)
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListUndeliveredFor fetches one recipient's undelivered backlog, oldest
// first.
func (r *Repository) ListUndeliveredFor(ctx context.Context, recipientID string) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	filter := bson.M{"recipient_id": recipientID, "delivered": false}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkDelivered records that the notification reached a live stream.
func (r *Repository) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"delivered": true, "delivered_at": now}}
	res, err := r.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead sets the explicit read flag. Scoped to the recipient so one user
// cannot acknowledge another's notification.
func (r *Repository) MarkRead(ctx context.Context, id primitive.ObjectID, recipientID string) error {
	filter := bson.M{"_id": id, "recipient_id": recipientID}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
