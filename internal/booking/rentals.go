package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/internaltypes"
	"github.com/example/scooter-rentals/internal/metrics"
	"github.com/example/scooter-rentals/internal/store"
)

// RentalManager drives NONE -> ACTIVE -> ENDED for both rental kinds. Static
// rentals are paid upfront for a fixed duration; dynamic rentals re-bill one
// extension interval at a time until billing fails, the ceiling is reached or
// the user ends early.
type RentalManager struct {
	store        Store
	jobs         Jobs
	charge       Charger
	reservations *ReservationManager

	interval    time.Duration
	maxDuration time.Duration
	priceCents  int64

	log *slog.Logger
}

func NewRentalManager(s Store, jobs Jobs, charge Charger, reservations *ReservationManager,
	interval, maxDuration time.Duration, priceCents int64, log *slog.Logger) *RentalManager {
	return &RentalManager{
		store:        s,
		jobs:         jobs,
		charge:       charge,
		reservations: reservations,
		interval:     interval,
		maxDuration:  maxDuration,
		priceCents:   priceCents,
		log:          log,
	}
}

// PriceFor prices a fixed duration: whole extension intervals, rounded up.
func (m *RentalManager) PriceFor(duration time.Duration) int64 {
	blocks := (duration + m.interval - 1) / m.interval
	return int64(blocks) * m.priceCents
}

// claimScooter validates availability under the row lock and consumes the
// caller's own reservation when one exists. A reservation by a different user
// makes the scooter unavailable. Returns the id of the consumed reservation,
// if any, so the caller can cancel its expiry job after commit.
func (m *RentalManager) claimScooter(ctx context.Context, tx pgx.Tx, userID, scooterID uuid.UUID) (*uuid.UUID, error) {
	sc, err := m.store.GetScooterForUpdate(ctx, tx, scooterID)
	if err != nil {
		return nil, err
	}
	if sc.ActiveRentalID != nil {
		return nil, internaltypes.ErrScooterUnavailable
	}
	if sc.ReservationID == nil {
		return nil, nil
	}

	res, err := m.store.GetReservationForUpdate(ctx, tx, *sc.ReservationID)
	if errors.Is(err, internaltypes.ErrReservationGone) {
		// stale pointer; the row is already gone, just clear it
		return nil, m.store.SetScooterReservation(ctx, tx, scooterID, nil)
	}
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, internaltypes.ErrScooterUnavailable
	}
	if err := m.reservations.EndInTx(ctx, tx, res.ID); err != nil {
		return nil, err
	}
	consumed := res.ID
	return &consumed, nil
}

// StartStatic charges the full fixed-duration price through the saga and
// books the rental in the saga's data-mutation step.
func (m *RentalManager) StartStatic(ctx context.Context, userID, scooterID, methodID uuid.UUID, duration time.Duration) (store.Rental, error) {
	if duration <= 0 {
		return store.Rental{}, fmt.Errorf("rental duration must be positive")
	}
	if duration > m.maxDuration {
		return store.Rental{}, fmt.Errorf("rental duration exceeds maximum of %s", m.maxDuration)
	}

	var (
		rental   store.Rental
		consumed *uuid.UUID
	)
	err := m.charge.RunCharge(ctx, userID, methodID, m.PriceFor(duration), func(ctx context.Context) error {
		return m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			consumed, err = m.claimScooter(ctx, tx, userID, scooterID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			expires := now.Add(duration)
			rental, err = m.store.InsertRental(ctx, tx, store.Rental{
				UserID:          userID,
				ScooterID:       scooterID,
				Kind:            store.RentalStatic,
				PaymentMethodID: &methodID,
				ExpiresAt:       &expires,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			return m.store.SetScooterRental(ctx, tx, scooterID, &rental.ID)
		})
	})
	if err != nil {
		return store.Rental{}, err
	}

	m.afterStart(rental, consumed)
	return rental, nil
}

// StartDynamic charges the first billing window and books an open-ended
// rental; the extension job keeps re-billing from there.
func (m *RentalManager) StartDynamic(ctx context.Context, userID, scooterID, methodID uuid.UUID) (store.Rental, error) {
	var (
		rental   store.Rental
		consumed *uuid.UUID
	)
	err := m.charge.RunCharge(ctx, userID, methodID, m.priceCents, func(ctx context.Context) error {
		return m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			consumed, err = m.claimScooter(ctx, tx, userID, scooterID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			paidUntil := now.Add(m.interval)
			rental, err = m.store.InsertRental(ctx, tx, store.Rental{
				UserID:          userID,
				ScooterID:       scooterID,
				Kind:            store.RentalDynamic,
				PaymentMethodID: &methodID,
				PaidUntil:       &paidUntil,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			return m.store.SetScooterRental(ctx, tx, scooterID, &rental.ID)
		})
	})
	if err != nil {
		return store.Rental{}, err
	}

	m.afterStart(rental, consumed)
	return rental, nil
}

func (m *RentalManager) afterStart(rental store.Rental, consumedReservation *uuid.UUID) {
	if consumedReservation != nil {
		m.jobs.Cancel(reservationKey(*consumedReservation))
		metrics.ReservationsEnded.WithLabelValues("converted").Inc()
	}
	m.scheduleLifecycle(rental, m.jobs.Schedule)
	metrics.RentalsStarted.WithLabelValues(string(rental.Kind)).Inc()
	m.log.Info("rental started", "rental_id", rental.ID, "kind", rental.Kind,
		"user_id", rental.UserID, "scooter_id", rental.ScooterID)
}

type scheduleFn func(key string, at time.Time, fn func(ctx context.Context))

func (m *RentalManager) scheduleLifecycle(r store.Rental, schedule scheduleFn) {
	id := r.ID
	switch r.Kind {
	case store.RentalStatic:
		schedule(rentalKey(id), *r.ExpiresAt, func(ctx context.Context) {
			m.endFromJob(ctx, id, "expired")
		})
	case store.RentalDynamic:
		schedule(rentalKey(id), *r.PaidUntil, func(ctx context.Context) {
			m.runExtension(ctx, id)
		})
	}
}

// EnsureLifecycleScheduled re-registers the expiry or extension job for an
// active rental if none is pending; the reconciliation sweep calls this for
// every non-ended rental. Reports whether a job had to be registered.
func (m *RentalManager) EnsureLifecycleScheduled(r store.Rental) bool {
	registered := false
	m.scheduleLifecycle(r, func(key string, at time.Time, fn func(ctx context.Context)) {
		registered = m.jobs.EnsureScheduled(key, at, fn)
	})
	return registered
}

// Extend bills the next window for a dynamic rental. When the next window
// would cross MAX_RENTAL_DURATION from the rental's creation, no charge is
// made and a final forced-end job is scheduled at the ceiling instead. A
// billing failure ends the rental immediately (fail-closed; the partial
// window is not refunded).
func (m *RentalManager) Extend(ctx context.Context, rentalID uuid.UUID) error {
	r, err := m.store.GetRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if !r.Active() {
		return internaltypes.ErrRentalEnded
	}
	if r.Kind != store.RentalDynamic {
		return fmt.Errorf("rental %s is static and cannot be extended", rentalID)
	}
	if r.PaymentMethodID == nil || r.PaidUntil == nil {
		return fmt.Errorf("dynamic rental %s has no billing state", rentalID)
	}

	ceiling := r.CreatedAt.Add(m.maxDuration)
	newPaid := r.PaidUntil.Add(m.interval)
	if newPaid.After(ceiling) {
		id := r.ID
		m.jobs.Schedule(rentalKey(id), ceiling, func(ctx context.Context) {
			m.endFromJob(ctx, id, "ceiling")
		})
		m.log.Info("rental reached extension ceiling, forced end scheduled",
			"rental_id", rentalID, "at", ceiling)
		return nil
	}

	err = m.charge.RunCharge(ctx, r.UserID, *r.PaymentMethodID, m.priceCents, func(ctx context.Context) error {
		return m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			rr, err := m.store.GetRentalForUpdate(ctx, tx, rentalID)
			if err != nil {
				return err
			}
			if !rr.Active() {
				// ended while we were charging; fail the booking step so the
				// saga rolls the charge back
				return internaltypes.ErrRentalEnded
			}
			return m.store.AdvancePaidUntil(ctx, tx, rentalID, newPaid)
		})
	})
	if err != nil {
		if errors.Is(err, internaltypes.ErrPaymentFailed) {
			m.log.Warn("extension billing failed, ending rental", "rental_id", rentalID, "err", err)
			if endErr := m.end(ctx, rentalID, "billing_failed"); endErr != nil && !errors.Is(endErr, internaltypes.ErrRentalEnded) {
				m.log.Error("failed to end rental after billing failure", "rental_id", rentalID, "err", endErr)
			}
		}
		return err
	}

	id := r.ID
	m.jobs.Schedule(rentalKey(id), newPaid, func(ctx context.Context) {
		m.runExtension(ctx, id)
	})
	m.log.Info("rental extended", "rental_id", rentalID, "paid_until", newPaid)
	return nil
}

// runExtension is the scheduler entry point: same logic as a foreground
// Extend call, failures logged rather than thrown to any caller.
func (m *RentalManager) runExtension(ctx context.Context, rentalID uuid.UUID) {
	err := m.Extend(ctx, rentalID)
	switch {
	case err == nil:
	case errors.Is(err, internaltypes.ErrRentalEnded), errors.Is(err, internaltypes.ErrNotFound):
		m.log.Debug("extension job found rental already ended", "rental_id", rentalID)
	case errors.Is(err, internaltypes.ErrPaymentFailed):
		// already handled fail-closed inside Extend
	default:
		m.log.Error("rental extension failed", "rental_id", rentalID, "err", err)
	}
}

// End marks the rental ended and frees the scooter. Ending an already-ended
// rental is a no-op, because the expiry job and a user-initiated end can race.
func (m *RentalManager) End(ctx context.Context, rentalID uuid.UUID) error {
	err := m.end(ctx, rentalID, "user")
	if errors.Is(err, internaltypes.ErrRentalEnded) {
		return nil
	}
	return err
}

func (m *RentalManager) end(ctx context.Context, rentalID uuid.UUID, reason string) error {
	err := m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := m.store.GetRentalForUpdate(ctx, tx, rentalID)
		if err != nil {
			return err
		}
		if !r.Active() {
			return internaltypes.ErrRentalEnded
		}
		if err := m.store.MarkRentalEnded(ctx, tx, rentalID, time.Now().UTC()); err != nil {
			return err
		}

		sc, err := m.store.GetScooterForUpdate(ctx, tx, r.ScooterID)
		switch {
		case errors.Is(err, internaltypes.ErrScooterNotFound):
			return nil
		case err != nil:
			return err
		case sc.ActiveRentalID != nil && *sc.ActiveRentalID == rentalID:
			return m.store.SetScooterRental(ctx, tx, sc.ID, nil)
		}
		return nil
	})
	if err != nil && !errors.Is(err, internaltypes.ErrRentalEnded) && !errors.Is(err, internaltypes.ErrNotFound) {
		// transient failure: the rental may still be live, keep its job
		return err
	}
	m.jobs.Cancel(rentalKey(rentalID))
	if err != nil {
		return err
	}
	metrics.RentalsEnded.WithLabelValues(reason).Inc()
	m.log.Info("rental ended", "rental_id", rentalID, "reason", reason)
	return nil
}

func (m *RentalManager) endFromJob(ctx context.Context, rentalID uuid.UUID, reason string) {
	err := m.end(ctx, rentalID, reason)
	switch {
	case err == nil:
	case errors.Is(err, internaltypes.ErrRentalEnded), errors.Is(err, internaltypes.ErrNotFound):
		m.log.Debug("end job found rental already ended", "rental_id", rentalID)
	default:
		m.log.Error("scheduled rental end failed", "rental_id", rentalID, "reason", reason, "err", err)
	}
}

// ByUser lists the user's rental history, newest first.
func (m *RentalManager) ByUser(ctx context.Context, userID uuid.UUID) ([]store.RentalHistoryRow, error) {
	return m.store.ListRentalsByUser(ctx, userID)
}
