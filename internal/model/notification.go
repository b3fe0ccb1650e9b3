package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is a fire-and-forget message to a user about an admission or visit.
type Notification struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	RecipientID       uuid.UUID          `db:"recipient_id" json:"recipient_id"`
	Title             string             `db:"title" json:"title"`
	Message           string             `db:"message" json:"message"`
	RelatedEntityType string             `db:"related_entity_type" json:"related_entity_type"`
	RelatedEntityID   uuid.UUID          `db:"related_entity_id" json:"related_entity_id"`
	Status            NotificationStatus `db:"status" json:"status"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

const (
	EntityAdmission = "admission"
	EntityVisit     = "visit"
)
