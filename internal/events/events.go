package events

import (
	"context"
	"time"
)

// SlotFreed signals that a (slot, period) pair lost its active reservation
// and the waitlist cascade should run. It is a queued message rather than an
// inline call so the cascade can be retried independently of the transition
// that freed the slot.
type SlotFreed struct {
	SlotID   string    `json:"slot_id"`
	PeriodID string    `json:"period_id"`
	FreedAt  time.Time `json:"freed_at"`
}

type NotificationType string

const (
	NotifySlotOffered          NotificationType = "slot_offered"
	NotifyHoldExpiringSoon     NotificationType = "hold_expiring_soon"
	NotifyReservationConfirmed NotificationType = "reservation_confirmed"
)

// Notification is handed to the external notification collaborator; the
// engine never performs delivery itself.
type Notification struct {
	Type     NotificationType `json:"type"`
	OwnerID  string           `json:"owner_id"`
	SlotID   string           `json:"slot_id,omitempty"`
	PeriodID string           `json:"period_id,omitempty"`
	RecordID string           `json:"record_id,omitempty"`
	Deadline *time.Time       `json:"deadline,omitempty"`
}

// Publisher emits engine events. Implementations must be safe for use from
// concurrent request workers and sweepers.
type Publisher interface {
	PublishSlotFreed(ctx context.Context, ev SlotFreed) error
	Notify(ctx context.Context, n Notification) error
}
