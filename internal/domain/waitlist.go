package domain

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting  WaitlistStatus = "waiting"
	WaitlistStatusOffered  WaitlistStatus = "offered"
	WaitlistStatusAccepted WaitlistStatus = "accepted"
	WaitlistStatusDeclined WaitlistStatus = "declined"
	WaitlistStatusExpired  WaitlistStatus = "expired"
)

// TierAny matches a freed slot of any tier.
const TierAny = "any"

// WaitlistEntry is a standing request for a slot within a period, created
// after a failed hold. Priority is FIFO arrival order unless an external
// loyalty collaborator supplies an override; lower values win.
type WaitlistEntry struct {
	ID             string
	PeriodID       string
	OwnerID        string
	ListingID      string
	TierPreference string
	Priority       int64
	Status         WaitlistStatus
	OfferedSlotID  string
	OfferExpiresAt *time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// WantsTier reports whether the entry matches a freed slot of the given tier.
func (e WaitlistEntry) WantsTier(t Tier) bool {
	return e.TierPreference == TierAny || e.TierPreference == string(t)
}

// OfferLapsed reports whether a pending offer's TTL has passed at now.
func (e WaitlistEntry) OfferLapsed(now time.Time) bool {
	return e.Status == WaitlistStatusOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now)
}
