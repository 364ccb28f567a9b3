package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusHeld            ReservationStatus = "held"
	ReservationStatusConfirmed       ReservationStatus = "confirmed"
	ReservationStatusPendingApproval ReservationStatus = "pending_approval"
	ReservationStatusCancelled       ReservationStatus = "cancelled"
	ReservationStatusExpired         ReservationStatus = "expired"
)

// Active reports whether the status counts against the one-active-reservation
// per (slot, period) invariant.
func (s ReservationStatus) Active() bool {
	switch s {
	case ReservationStatusHeld, ReservationStatusConfirmed, ReservationStatusPendingApproval:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from the status.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusExpired
}

// CancelActor records who drove a cancellation.
type CancelActor string

const (
	CancelActorOwner     CancelActor = "owner"
	CancelActorAdmin     CancelActor = "admin"
	CancelActorSystem    CancelActor = "system"
	CancelActorModerator CancelActor = "moderation"
)

// Reservation binds one slot to one period for one advertiser's listing.
// ListingID and OwnerID are opaque references owned by external collaborators.
type Reservation struct {
	ID            string
	SlotID        string
	PeriodID      string
	ListingID     string
	OwnerID       string
	Status        ReservationStatus
	Price         decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	HoldExpiresAt time.Time
	// EndsAt defaults to the period end and moves forward when an extension
	// request is approved.
	EndsAt         time.Time
	PaymentRef     string
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
	CancelReason   string
	CancelActor    CancelActor
	ExpiryWarnedAt *time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// HoldLapsed reports whether a held reservation's TTL has passed at now.
func (r Reservation) HoldLapsed(now time.Time) bool {
	return r.Status == ReservationStatusHeld && !r.HoldExpiresAt.After(now)
}
