package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type ExtensionRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.ExtensionRequest, error)
	// Create inserts the request; a second open request for the same
	// reservation must fail with domain.ErrExtensionPending.
	Create(ctx context.Context, e domain.ExtensionRequest) error
	GetForUpdate(ctx context.Context, id string) (domain.ExtensionRequest, error)
	SetPaymentCaptured(ctx context.Context, id, paymentRef string, to domain.ExtensionStatus) (bool, error)
	Decide(ctx context.Context, id string, to domain.ExtensionStatus, decidedBy, note string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, from, to domain.ExtensionStatus) (bool, error)

	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	ExtendReservation(ctx context.Context, id string, endsAt time.Time) error
	GetSlot(ctx context.Context, id string) (domain.Slot, error)
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
}

type ExtensionService struct {
	repo        ExtensionRepository
	clock       clock.Clock
	logger      *slog.Logger
	taxRate     decimal.Decimal
	autoApprove bool
	maxDays     int
}

const defaultMaxExtensionDays = 30

func NewExtensionService(repo ExtensionRepository, clk clock.Clock, opts ...ExtensionServiceOption) *ExtensionService {
	svc := &ExtensionService{
		repo:    repo,
		clock:   clk,
		logger:  slog.Default(),
		taxRate: decimal.NewFromFloat(0.15),
		maxDays: defaultMaxExtensionDays,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ExtensionServiceOption func(*ExtensionService)

func WithExtensionTaxRate(rate decimal.Decimal) ExtensionServiceOption {
	return func(s *ExtensionService) {
		if !rate.IsNegative() {
			s.taxRate = rate
		}
	}
}

// WithAutoApprove skips the admin queue after payment capture. The policy
// itself lives with an external collaborator; this is only its switch.
func WithAutoApprove(on bool) ExtensionServiceOption {
	return func(s *ExtensionService) { s.autoApprove = on }
}

func WithExtensionLogger(l *slog.Logger) ExtensionServiceOption {
	return func(s *ExtensionService) {
		if l != nil {
			s.logger = l
		}
	}
}

type ExtensionRequestInput struct {
	ReservationID  string
	AdditionalDays int
	IdempotencyKey string
}

// Request opens a paid extension for a confirmed reservation, priced at the
// slot's implied per-day rate.
func (s *ExtensionService) Request(ctx context.Context, in ExtensionRequestInput) (domain.ExtensionRequest, error) {
	if in.IdempotencyKey == "" {
		return domain.ExtensionRequest{}, domain.ErrIdempotencyKeyRequired
	}
	if in.ReservationID == "" {
		return domain.ExtensionRequest{}, domain.ErrInvalidID
	}
	if in.AdditionalDays <= 0 || in.AdditionalDays > s.maxDays {
		return domain.ExtensionRequest{}, domain.ErrInvalidDays
	}

	now := s.clock.Now()
	var result domain.ExtensionRequest

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.repo.FindByIdempotencyKey(txCtx, in.IdempotencyKey); err != nil {
			return err
		} else if existing != nil {
			if existing.ReservationID != in.ReservationID || existing.AdditionalDays != in.AdditionalDays {
				return domain.ErrIdempotencyConflict
			}
			result = *existing
			return nil
		}

		res, err := s.repo.GetReservationForUpdate(txCtx, in.ReservationID)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusConfirmed {
			return domain.ErrInvalidTransition
		}

		slot, err := s.repo.GetSlot(txCtx, res.SlotID)
		if err != nil {
			return err
		}
		period, err := s.repo.GetPeriod(txCtx, res.PeriodID)
		if err != nil {
			return err
		}

		periodDays := int(period.EndsAt.Sub(period.StartsAt).Hours() / 24)
		amounts := domain.PriceExtension(slot.BasePrice, periodDays, in.AdditionalDays, s.taxRate)

		result = domain.ExtensionRequest{
			ID:             newID(),
			ReservationID:  in.ReservationID,
			AdditionalDays: in.AdditionalDays,
			Price:          amounts.Price,
			Tax:            amounts.Tax,
			Total:          amounts.Total,
			Status:         domain.ExtensionStatusPendingPayment,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		return s.repo.Create(txCtx, result)
	})
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	return result, nil
}

// OnPaymentCaptured records the payment collaborator's capture and moves the
// request into the admin queue, or straight to approved under auto-approval.
func (s *ExtensionService) OnPaymentCaptured(ctx context.Context, extensionID, paymentRef string) (domain.ExtensionRequest, error) {
	if paymentRef == "" {
		return domain.ExtensionRequest{}, domain.ErrIdempotencyKeyRequired
	}

	now := s.clock.Now()
	var result domain.ExtensionRequest

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ext, err := s.repo.GetForUpdate(txCtx, extensionID)
		if err != nil {
			return err
		}

		if ext.Status == domain.ExtensionStatusPendingAdmin || ext.Status == domain.ExtensionStatusApproved {
			if ext.PaymentRef == paymentRef {
				result = ext
				return nil
			}
			return domain.ErrAlreadyDecided
		}
		if ext.Status != domain.ExtensionStatusPendingPayment {
			return domain.ErrInvalidTransition
		}

		to := domain.ExtensionStatusPendingAdmin
		if s.autoApprove {
			to = domain.ExtensionStatusApproved
		}
		applied, err := s.repo.SetPaymentCaptured(txCtx, ext.ID, paymentRef, to)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}

		if s.autoApprove {
			if err := s.applyExtension(txCtx, ext, now); err != nil {
				return err
			}
			ext.DecidedAt = &now
			ext.DecidedBy = "auto"
		}

		ext.Status = to
		ext.PaymentRef = paymentRef
		result = ext
		return nil
	})
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	return result, nil
}

type DecideInput struct {
	ExtensionID string
	Approve     bool
	AdminRef    string
	Note        string
}

// Decide resolves a paid extension request. An approval pushes the parent
// reservation's end forward by the purchased days; deciding a terminal
// request fails with ErrAlreadyDecided and leaves the first decision intact.
func (s *ExtensionService) Decide(ctx context.Context, in DecideInput) (domain.ExtensionRequest, error) {
	if in.ExtensionID == "" || in.AdminRef == "" {
		return domain.ExtensionRequest{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.ExtensionRequest

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ext, err := s.repo.GetForUpdate(txCtx, in.ExtensionID)
		if err != nil {
			return err
		}
		if ext.Status.Terminal() {
			return domain.ErrAlreadyDecided
		}
		if ext.Status != domain.ExtensionStatusPendingAdmin {
			return domain.ErrInvalidTransition
		}

		to := domain.ExtensionStatusRejected
		if in.Approve {
			to = domain.ExtensionStatusApproved
		}
		applied, err := s.repo.Decide(txCtx, ext.ID, to, in.AdminRef, in.Note, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrAlreadyDecided
		}

		if in.Approve {
			if err := s.applyExtension(txCtx, ext, now); err != nil {
				return err
			}
		}

		ext.Status = to
		ext.DecidedBy = in.AdminRef
		ext.DecisionNote = in.Note
		ext.DecidedAt = &now
		result = ext
		return nil
	})
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	return result, nil
}

// Cancel abandons an unpaid request.
func (s *ExtensionService) Cancel(ctx context.Context, extensionID string) (domain.ExtensionRequest, error) {
	var result domain.ExtensionRequest

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ext, err := s.repo.GetForUpdate(txCtx, extensionID)
		if err != nil {
			return err
		}
		if ext.Status == domain.ExtensionStatusCancelled {
			result = ext
			return nil
		}
		if ext.Status != domain.ExtensionStatusPendingPayment {
			return domain.ErrInvalidTransition
		}
		applied, err := s.repo.SetStatus(txCtx, ext.ID, domain.ExtensionStatusPendingPayment, domain.ExtensionStatusCancelled)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}
		ext.Status = domain.ExtensionStatusCancelled
		result = ext
		return nil
	})
	if err != nil {
		return domain.ExtensionRequest{}, err
	}
	return result, nil
}

// applyExtension pushes the parent reservation's end forward, inside the
// caller's transaction so decision and extension commit together.
func (s *ExtensionService) applyExtension(ctx context.Context, ext domain.ExtensionRequest, now time.Time) error {
	res, err := s.repo.GetReservationForUpdate(ctx, ext.ReservationID)
	if err != nil {
		return err
	}
	if res.Status != domain.ReservationStatusConfirmed {
		return domain.ErrInvalidTransition
	}
	newEnd := res.EndsAt.Add(time.Duration(ext.AdditionalDays) * 24 * time.Hour)
	return s.repo.ExtendReservation(ctx, res.ID, newEnd)
}
