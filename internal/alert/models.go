package alert

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of an alert. Transitions only move forward:
// pending -> responded -> resolved.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResponded Status = "responded"
	StatusResolved  Status = "resolved"
)

// Role identifies which kind of user raised an alert.
type Role string

const (
	RoleStudent  Role = "student"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleEmployee:
		return true
	}
	return false
}

// Requester is the identity snapshot captured when the alert is created. It
// never changes afterwards, even if the underlying profile does.
type Requester struct {
	ID        string `bson:"id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Email     string `bson:"email" json:"email"`
	Role      Role   `bson:"role" json:"role"`
	RoleRefID string `bson:"role_ref_id" json:"role_ref_id"`
}

// Responder records the single winning claim.
type Responder struct {
	ID               string    `bson:"id" json:"id"`
	Name             string    `bson:"name" json:"name"`
	RespondedAt      time.Time `bson:"responded_at" json:"responded_at"`
	EstimatedArrival string    `bson:"estimated_arrival" json:"estimated_arrival"`
}

// Resolution records the terminal resolve transition.
type Resolution struct {
	ResolverID   string    `bson:"resolver_id" json:"resolver_id"`
	ResolverName string    `bson:"resolver_name" json:"resolver_name"`
	ResolvedAt   time.Time `bson:"resolved_at" json:"resolved_at"`
}

// Alert is one emergency request, from creation to resolution. Resolved
// alerts are kept for audit and never deleted.
type Alert struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Status     Status             `bson:"status" json:"status"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	Requester  Requester          `bson:"requester" json:"requester"`
	Location   string             `bson:"location" json:"location"`
	Note       string             `bson:"note" json:"note"`
	Responder  *Responder         `bson:"responder,omitempty" json:"responder,omitempty"`
	Resolution *Resolution        `bson:"resolution,omitempty" json:"resolution,omitempty"`
}
