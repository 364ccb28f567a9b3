package domain

import "errors"

var (
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrPeriodNotActive        = errors.New("period not active")
	ErrHoldExpired            = errors.New("hold expired")
	ErrOfferExpired           = errors.New("offer expired")
	ErrAlreadyConfirmed       = errors.New("reservation already confirmed")
	ErrAlreadyDecided         = errors.New("extension request already decided")
	ErrNoSlotsConfigured      = errors.New("no slots configured")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrPeriodNotFound         = errors.New("period not found")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrWaitlistEntryNotFound  = errors.New("waitlist entry not found")
	ErrExtensionNotFound      = errors.New("extension request not found")
	ErrExtensionPending       = errors.New("extension request already pending")
	ErrActivePeriodExists     = errors.New("active period already exists")
	ErrInvalidDays            = errors.New("invalid number of days")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrInvalidID              = errors.New("invalid id")
)
