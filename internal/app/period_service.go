package app

import (
	"context"
	"errors"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type PeriodRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// EndPeriodsBefore marks every non-ended period with ends_at <= cutoff as ended.
	EndPeriodsBefore(ctx context.Context, cutoff time.Time) (int, error)
	FindActive(ctx context.Context) (*domain.Period, error)
	// ActivateUpcoming promotes an upcoming period covering now, if any.
	ActivateUpcoming(ctx context.Context, now time.Time) (*domain.Period, error)
	// LastEnd returns the latest known period end, zero when none exist.
	LastEnd(ctx context.Context) (time.Time, error)
	// Create inserts a period; an insert racing another active period must
	// fail with domain.ErrActivePeriodExists.
	Create(ctx context.Context, p domain.Period) error
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
}

type PeriodService struct {
	repo   PeriodRepository
	clock  clock.Clock
	length time.Duration
}

const defaultPeriodLength = 7 * 24 * time.Hour

func NewPeriodService(repo PeriodRepository, clk clock.Clock, opts ...PeriodServiceOption) *PeriodService {
	svc := &PeriodService{
		repo:   repo,
		clock:  clk,
		length: defaultPeriodLength,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PeriodServiceOption func(*PeriodService)

// WithPeriodLength overrides the default seven-day period window.
func WithPeriodLength(d time.Duration) PeriodServiceOption {
	return func(s *PeriodService) {
		if d > 0 {
			s.length = d
		}
	}
}

// GetOrCreateActivePeriod returns the period covering now, ending stale
// periods and creating the successor when needed. Concurrent callers converge
// on the same period: the single-active constraint rejects the second insert,
// which then re-reads the winner.
func (s *PeriodService) GetOrCreateActivePeriod(ctx context.Context) (domain.Period, error) {
	now := s.clock.Now()
	var result domain.Period

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.EndPeriodsBefore(txCtx, now); err != nil {
			return err
		}

		if p, err := s.repo.FindActive(txCtx); err != nil {
			return err
		} else if p != nil {
			result = *p
			return nil
		}

		if p, err := s.repo.ActivateUpcoming(txCtx, now); err != nil {
			return err
		} else if p != nil {
			result = *p
			return nil
		}

		lastEnd, err := s.repo.LastEnd(txCtx)
		if err != nil {
			return err
		}

		// The new period follows the previous one's end, unless that window
		// has already fully elapsed.
		start := lastEnd
		if lastEnd.IsZero() || !lastEnd.Add(s.length).After(now) {
			start = now
		}

		result = domain.Period{
			ID:       newID(),
			StartsAt: start,
			EndsAt:   start.Add(s.length),
			Status:   domain.PeriodStatusActive,
		}
		return s.repo.Create(txCtx, result)
	})
	if errors.Is(err, domain.ErrActivePeriodExists) {
		// Lost the race: the other caller's period is the one.
		if p, ferr := s.repo.FindActive(ctx); ferr == nil && p != nil {
			return *p, nil
		}
		return domain.Period{}, err
	}
	if err != nil {
		return domain.Period{}, err
	}
	return result, nil
}

func (s *PeriodService) PeriodByID(ctx context.Context, id string) (domain.Period, error) {
	if id == "" {
		return domain.Period{}, domain.ErrInvalidID
	}
	return s.repo.GetPeriod(ctx, id)
}
