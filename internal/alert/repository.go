package alert

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the persistence contract the alert service depends on. The
// conditional transitions must be atomic per document: two concurrent
// ClaimPending calls for the same alert must not both succeed.
type Store interface {
	Insert(ctx context.Context, a *Alert) error
	FindByID(ctx context.Context, id string) (*Alert, error)
	ListActive(ctx context.Context) ([]*Alert, error)
	ClaimPending(ctx context.Context, id string, responder Responder) (*Alert, error)
	ResolveResponded(ctx context.Context, id string, resolution Resolution) (*Alert, error)
}

// Repository handles DB operations for alerts.
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new repository for alerts.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection("alerts")}
}

// Insert stores a new alert as a single atomic write.
func (r *Repository) Insert(ctx context.Context, a *Alert) error {
	if _, err := r.collection.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var a Alert
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&a)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &a, nil
}

// ListActive returns all pending and responded alerts, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]*Alert, error) {
	filter := bson.M{"status": bson.M{"$in": []Status{StatusPending, StatusResponded}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var alerts []*Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return alerts, nil
}

// ClaimPending performs the compare-and-swap transition pending -> responded.
// The filter carries the expected status, so the update applies only if the
// alert is still pending at write time. A read-then-write pair here would let
// two admins both win.
func (r *Repository) ClaimPending(ctx context.Context, id string, responder Responder) (*Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := bson.M{"_id": oid, "status": StatusPending}
	update := bson.M{"$set": bson.M{"status": StatusResponded, "responder": responder}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Alert
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// No pending document matched: either the alert is unknown or somebody
	// else won. The follow-up read tells the loser who did.
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrAlreadyClaimed
}

// ResolveResponded performs the compare-and-swap transition
// responded -> resolved. Resolving a pending or already resolved alert has no
// effect.
func (r *Repository) ResolveResponded(ctx context.Context, id string, resolution Resolution) (*Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := bson.M{"_id": oid, "status": StatusResponded}
	update := bson.M{"$set": bson.M{"status": StatusResolved, "resolution": resolution}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Alert
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrInvalidTransition
}
