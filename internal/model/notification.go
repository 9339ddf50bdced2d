package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

type NotificationCategory string

const (
	NotificationCategoryAppointment NotificationCategory = "appointment"
	NotificationCategoryPayment     NotificationCategory = "payment"
	NotificationCategorySystem      NotificationCategory = "system"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

type Notification struct {
	Base
	RecipientID uuid.UUID            `db:"recipient_id" json:"recipient_id"`
	SenderID    *uuid.UUID           `db:"sender_id" json:"sender_id,omitempty"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	Type        NotificationType     `db:"type" json:"type"`
	Category    NotificationCategory `db:"category" json:"category"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	ActionURL   *string              `db:"action_url" json:"action_url,omitempty"`
	ActionLabel *string              `db:"action_label" json:"action_label,omitempty"`
	Metadata    json.RawMessage      `db:"metadata" json:"metadata,omitempty"`
	Read        bool                 `db:"read" json:"read"`
	ReadAt      *time.Time           `db:"read_at" json:"read_at,omitempty"`
}

type NotificationFilters struct {
	RecipientID uuid.UUID
	Category    NotificationCategory
	UnreadOnly  bool
}

// NotificationEvent is the broker payload published for each dispatched
// notification. The worker's email channel picks the recipient address out
// of it when present.
type NotificationEvent struct {
	NotificationID uuid.UUID            `json:"notification_id"`
	RecipientID    uuid.UUID            `json:"recipient_id"`
	RecipientEmail string               `json:"recipient_email,omitempty"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	Category       NotificationCategory `json:"category"`
	Priority       NotificationPriority `json:"priority"`
	CreatedAt      time.Time            `json:"created_at"`
}
