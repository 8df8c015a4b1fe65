package reports

import (
	"context"
	"database/sql"
	"time"

	"ALMS-backend/internal/platform/apierr"
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store *Store
	clock Clock
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}}
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	return s.store.Dashboard(ctx, s.clock.Now())
}

// Financial aggregates payments in [from, to). A zero `to` means now;
// a zero `from` means the last 30 days.
func (s *Service) Financial(ctx context.Context, from, to time.Time) (*FinancialResponse, error) {
	from, to, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	return s.store.Financial(ctx, from, to)
}

func (s *Service) Circulation(ctx context.Context, from, to time.Time) (*CirculationResponse, error) {
	from, to, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	return s.store.Circulation(ctx, from, to)
}

func (s *Service) window(from, to time.Time) (time.Time, time.Time, error) {
	now := s.clock.Now()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, apierr.ErrInvalid("from must be before to")
	}
	return from.UTC(), to.UTC(), nil
}
