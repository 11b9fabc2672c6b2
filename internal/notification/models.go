package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is the durable acknowledgment sent back to a requester after
// an admin claims their alert. Delivered tracks the push to a live stream;
// Read is a separate, explicit acknowledgment the client may or may not set.
type Notification struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID      string             `bson:"recipient_id" json:"recipient_id"`
	RecipientEmail   string             `bson:"recipient_email" json:"-"`
	AlertID          string             `bson:"alert_id" json:"alert_id"`
	Message          string             `bson:"message" json:"message"`
	EstimatedArrival string             `bson:"estimated_arrival" json:"estimated_arrival"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	Read             bool               `bson:"read" json:"read"`
	Delivered        bool               `bson:"delivered" json:"-"`
	DeliveredAt      *time.Time         `bson:"delivered_at,omitempty" json:"-"`
}
