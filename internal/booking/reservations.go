package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/internaltypes"
	"github.com/example/scooter-rentals/internal/metrics"
	"github.com/example/scooter-rentals/internal/store"
)

// ReservationManager drives the NONE -> RESERVED -> NONE state machine for a
// scooter hold.
type ReservationManager struct {
	store Store
	jobs  Jobs
	ttl   time.Duration
	log   *slog.Logger
}

func NewReservationManager(s Store, jobs Jobs, ttl time.Duration, log *slog.Logger) *ReservationManager {
	return &ReservationManager{store: s, jobs: jobs, ttl: ttl, log: log}
}

// Start reserves the scooter for the user until now + TTL. It fails on any
// existing reservation for the scooter, including the caller's own: callers
// must use the reservation they already hold.
func (m *ReservationManager) Start(ctx context.Context, userID, scooterID uuid.UUID) (store.Reservation, error) {
	// advisory pre-check; the unique index on reservations(user_id) closes
	// the race inside the transaction. Re-reserving the scooter one already
	// holds is a scooter conflict: any reservation on the scooter blocks.
	if d, err := m.store.GetReservationByUser(ctx, userID); err == nil {
		if d.ScooterID == scooterID {
			return store.Reservation{}, internaltypes.ErrScooterUnavailable
		}
		return store.Reservation{}, internaltypes.ErrUserHasReservation
	} else if !errors.Is(err, internaltypes.ErrNotFound) {
		return store.Reservation{}, err
	}

	var res store.Reservation
	endsAt := time.Now().UTC().Add(m.ttl)
	err := m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sc, err := m.store.GetScooterForUpdate(ctx, tx, scooterID)
		if err != nil {
			return err
		}
		if sc.ActiveRentalID != nil || sc.ReservationID != nil {
			return internaltypes.ErrScooterUnavailable
		}
		res, err = m.store.InsertReservation(ctx, tx, userID, scooterID, endsAt)
		if err != nil {
			return err
		}
		return m.store.SetScooterReservation(ctx, tx, scooterID, &res.ID)
	})
	if err != nil {
		return store.Reservation{}, err
	}

	resID := res.ID
	m.jobs.Schedule(reservationKey(resID), endsAt, func(ctx context.Context) {
		m.expire(ctx, resID)
	})
	metrics.ReservationsStarted.Inc()
	m.log.Info("reservation started", "reservation_id", resID, "user_id", userID, "scooter_id", scooterID, "ends_at", endsAt)
	return res, nil
}

// End cancels the reservation and frees the scooter. A reservation already
// ended by another path returns ErrReservationGone; callers treat that as
// success, not a user-facing error.
func (m *ReservationManager) End(ctx context.Context, reservationID uuid.UUID) error {
	return m.end(ctx, reservationID, "user")
}

func (m *ReservationManager) end(ctx context.Context, reservationID uuid.UUID, reason string) error {
	err := m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return m.EndInTx(ctx, tx, reservationID)
	})
	if err != nil && !errors.Is(err, internaltypes.ErrReservationGone) {
		// transient failure: the row may still be live, keep its expiry job
		return err
	}
	// cancelled on the gone path too: whoever ended the row may have been
	// this very job, and Cancel is an idempotent no-op
	m.jobs.Cancel(reservationKey(reservationID))
	if err != nil {
		return err
	}
	metrics.ReservationsEnded.WithLabelValues(reason).Inc()
	m.log.Info("reservation ended", "reservation_id", reservationID, "reason", reason)
	return nil
}

// EndInTx is the nested-transaction mode used when a rental conversion ends
// the reservation as part of its own larger transaction. The caller is
// responsible for cancelling the scheduler job after its commit.
func (m *ReservationManager) EndInTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) error {
	res, err := m.store.GetReservationForUpdate(ctx, tx, reservationID)
	if err != nil {
		return err
	}

	sc, err := m.store.GetScooterForUpdate(ctx, tx, res.ScooterID)
	switch {
	case errors.Is(err, internaltypes.ErrScooterNotFound):
		// dangling reservation: still remove the row
	case err != nil:
		return err
	case sc.ReservationID != nil && *sc.ReservationID == res.ID:
		if err := m.store.SetScooterReservation(ctx, tx, sc.ID, nil); err != nil {
			return err
		}
	}

	return m.store.DeleteReservation(ctx, tx, reservationID)
}

// EnsureExpiryScheduled re-registers the expiry job for a live reservation if
// none is pending; the reconciliation sweep calls this for every reservation
// row. A stored time already in the past fires immediately.
func (m *ReservationManager) EnsureExpiryScheduled(res store.Reservation) bool {
	id := res.ID
	return m.jobs.EnsureScheduled(reservationKey(id), res.EndsAt, func(ctx context.Context) {
		m.expire(ctx, id)
	})
}

func (m *ReservationManager) expire(ctx context.Context, reservationID uuid.UUID) {
	err := m.end(ctx, reservationID, "expired")
	switch {
	case err == nil:
	case errors.Is(err, internaltypes.ErrReservationGone):
		// ended by another path before the job fired
		m.log.Debug("expiry job found reservation already gone", "reservation_id", reservationID)
	default:
		m.log.Error("reservation expiry failed", "reservation_id", reservationID, "err", err)
	}
}

// ByUser returns the user's live reservation joined with scooter display
// fields. A dangling row (scooter reference broken) is corrupt data: it is
// healed by ending the reservation, and "none found" is returned.
func (m *ReservationManager) ByUser(ctx context.Context, userID uuid.UUID) (store.ReservationDetail, error) {
	return m.heal(ctx, func() (store.ReservationDetail, error) {
		return m.store.GetReservationByUser(ctx, userID)
	})
}

// ByScooter is ByUser keyed by scooter.
func (m *ReservationManager) ByScooter(ctx context.Context, scooterID uuid.UUID) (store.ReservationDetail, error) {
	return m.heal(ctx, func() (store.ReservationDetail, error) {
		return m.store.GetReservationByScooter(ctx, scooterID)
	})
}

func (m *ReservationManager) heal(ctx context.Context, get func() (store.ReservationDetail, error)) (store.ReservationDetail, error) {
	d, err := get()
	if err != nil {
		return store.ReservationDetail{}, err
	}
	if d.Dangling {
		m.log.Warn("healing dangling reservation", "reservation_id", d.ID, "scooter_id", d.ScooterID)
		if err := m.end(ctx, d.ID, "dangling"); err != nil && !errors.Is(err, internaltypes.ErrReservationGone) {
			return store.ReservationDetail{}, err
		}
		return store.ReservationDetail{}, internaltypes.ErrNotFound
	}
	return d, nil
}
