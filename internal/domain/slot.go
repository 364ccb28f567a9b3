package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierTop    Tier = "top"
	TierMiddle Tier = "middle"
	TierBottom Tier = "bottom"
)

// FreeSlot identifies a slot with no active-status reservation for a period.
type FreeSlot struct {
	SlotID   string
	PeriodID string
}

// Slot is one fixed premium display position on the homepage grid.
// Slots are seeded once at bootstrap; only Active and BasePrice change afterwards.
type Slot struct {
	ID           string
	Row          int
	Col          int
	Tier         Tier
	BasePrice    decimal.Decimal
	DisplayOrder int
	Active       bool
	CreatedAt    time.Time
}
