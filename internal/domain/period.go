package domain

import "time"

type PeriodStatus string

const (
	PeriodStatusUpcoming PeriodStatus = "upcoming"
	PeriodStatusActive   PeriodStatus = "active"
	PeriodStatusEnded    PeriodStatus = "ended"
)

// Period is a bounded time window slots are sold against. At most one period
// is active at a time; transitions upcoming -> active -> ended are time-driven
// and never reversed.
type Period struct {
	ID       string
	StartsAt time.Time
	EndsAt   time.Time
	Status   PeriodStatus
}

// Covers reports whether t falls inside the period window.
func (p Period) Covers(t time.Time) bool {
	return !t.Before(p.StartsAt) && t.Before(p.EndsAt)
}
