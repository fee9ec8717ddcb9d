// Package reconcile re-derives scheduler jobs from durable state. Scheduler
// jobs are not persisted, so after a restart every live reservation and rental
// would otherwise be stranded; the sweep runs once at startup and then
// periodically as a self-heal, registering jobs only where none is pending.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/scooter-rentals/internal/booking"
	"github.com/example/scooter-rentals/internal/store"
)

type Source interface {
	ListReservations(ctx context.Context) ([]store.Reservation, error)
	ListActiveRentals(ctx context.Context) ([]store.Rental, error)
}

type Sweeper struct {
	cron         *cron.Cron
	src          Source
	reservations *booking.ReservationManager
	rentals      *booking.RentalManager
	log          *slog.Logger
}

func NewSweeper(src Source, reservations *booking.ReservationManager, rentals *booking.RentalManager, log *slog.Logger) *Sweeper {
	return &Sweeper{
		cron:         cron.New(),
		src:          src,
		reservations: reservations,
		rentals:      rentals,
		log:          log,
	}
}

// Start runs one sweep immediately (the startup recovery pass) and then
// repeats at the given interval.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	if _, err := s.SweepOnce(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if n, err := s.SweepOnce(context.Background()); err != nil {
			s.log.Error("reconcile sweep failed", "err", err)
		} else if n > 0 {
			s.log.Warn("reconcile sweep re-registered jobs", "count", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// SweepOnce registers a job for every live reservation and active rental that
// has none pending, and returns how many it registered. Stored times already
// in the past fire immediately as forced expiries.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	registered := 0

	reservations, err := s.src.ListReservations(ctx)
	if err != nil {
		return 0, err
	}
	for _, res := range reservations {
		if s.reservations.EnsureExpiryScheduled(res) {
			registered++
		}
	}

	rentals, err := s.src.ListActiveRentals(ctx)
	if err != nil {
		return registered, err
	}
	for _, r := range rentals {
		if s.rentals.EnsureLifecycleScheduled(r) {
			registered++
		}
	}

	return registered, nil
}
