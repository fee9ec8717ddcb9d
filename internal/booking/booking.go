// Package booking holds the two lifecycle managers: reservations and rentals.
// They own every mutation of a scooter's availability pointers, always inside
// a store transaction, and they own the scheduler jobs that drive expiry and
// dynamic-rental extension.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/store"
)

// Store is the slice of the availability store the managers need. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error

	GetScooterForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Scooter, error)
	SetScooterReservation(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, reservationID *uuid.UUID) error
	SetScooterRental(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, rentalID *uuid.UUID) error

	InsertReservation(ctx context.Context, tx pgx.Tx, userID, scooterID uuid.UUID, endsAt time.Time) (store.Reservation, error)
	GetReservationForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Reservation, error)
	DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	GetReservationByUser(ctx context.Context, userID uuid.UUID) (store.ReservationDetail, error)
	GetReservationByScooter(ctx context.Context, scooterID uuid.UUID) (store.ReservationDetail, error)

	InsertRental(ctx context.Context, tx pgx.Tx, r store.Rental) (store.Rental, error)
	GetRental(ctx context.Context, id uuid.UUID) (store.Rental, error)
	GetRentalForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Rental, error)
	MarkRentalEnded(ctx context.Context, tx pgx.Tx, id uuid.UUID, endedAt time.Time) error
	AdvancePaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error
	ListRentalsByUser(ctx context.Context, userID uuid.UUID) ([]store.RentalHistoryRow, error)
}

// Jobs is the scheduler surface the managers drive. EnsureScheduled is used
// by the reconciliation sweep so it never replaces an in-flight schedule.
type Jobs interface {
	Schedule(key string, at time.Time, fn func(ctx context.Context))
	EnsureScheduled(key string, at time.Time, fn func(ctx context.Context)) bool
	Cancel(key string)
}

// Charger runs the payment saga; see internal/saga. The method must belong to
// userID.
type Charger interface {
	RunCharge(ctx context.Context, userID, methodID uuid.UUID, amountCents int64, book func(ctx context.Context) error) error
}

func reservationKey(id uuid.UUID) string { return "reservation:" + id.String() }
func rentalKey(id uuid.UUID) string      { return "rental:" + id.String() }
