package models

import "time"

// NotificationKind identifies the entity a notification refers to.
type NotificationKind string

const (
	NotificationKindRequest NotificationKind = "REQUEST"
	NotificationKindOrder   NotificationKind = "ORDER"
)

// Notification is an in-app message created as a side effect of a workflow
// transition. It is never mutated except to flip the read flag.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Message   string           `db:"message" json:"message"`
	Link      *string          `db:"link" json:"link,omitempty"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	RefID     *string          `db:"ref_id" json:"ref_id,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
