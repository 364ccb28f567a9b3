package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExtensionStatus string

const (
	ExtensionStatusPendingPayment ExtensionStatus = "pending_payment"
	ExtensionStatusPendingAdmin   ExtensionStatus = "pending_admin"
	ExtensionStatusApproved       ExtensionStatus = "approved"
	ExtensionStatusRejected       ExtensionStatus = "rejected"
	ExtensionStatusCancelled      ExtensionStatus = "cancelled"
	ExtensionStatusExpired        ExtensionStatus = "expired"
)

// Terminal reports whether the request has been decided or abandoned.
func (s ExtensionStatus) Terminal() bool {
	switch s {
	case ExtensionStatusApproved, ExtensionStatusRejected, ExtensionStatusCancelled, ExtensionStatusExpired:
		return true
	}
	return false
}

// ExtensionRequest asks to push a confirmed reservation's end date forward by
// a number of paid days.
type ExtensionRequest struct {
	ID             string
	ReservationID  string
	AdditionalDays int
	Price          decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Status         ExtensionStatus
	PaymentRef     string
	DecidedBy      string
	DecisionNote   string
	DecidedAt      *time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}
