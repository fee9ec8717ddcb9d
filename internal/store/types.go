package store

import (
	"time"

	"github.com/google/uuid"
)

// Scooter availability is carried by two exclusive-owner pointers. At most one
// of ActiveRentalID / ReservationID is set at a time; both are mutated only
// inside a transaction holding the scooter row lock.
type Scooter struct {
	ID             uuid.UUID
	Label          string
	ActiveRentalID *uuid.UUID
	ReservationID  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Reservation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ScooterID uuid.UUID
	EndsAt    time.Time
	CreatedAt time.Time
}

// ReservationDetail joins in scooter display fields. Dangling reports a
// reservation row whose scooter no longer resolves; callers treat that as
// corrupt data and heal it by ending the reservation.
type ReservationDetail struct {
	Reservation
	ScooterLabel string
	Dangling     bool
}

type RentalKind string

const (
	RentalStatic  RentalKind = "static"
	RentalDynamic RentalKind = "dynamic"
)

// Rental rows are append-only history: ending one sets EndedAt, never deletes.
// EndedAt == nil means active for both kinds; ExpiresAt holds a static
// rental's pre-committed expiry, PaidUntil a dynamic rental's paid window.
type Rental struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ScooterID       uuid.UUID
	Kind            RentalKind
	PaymentMethodID *uuid.UUID
	ExpiresAt       *time.Time
	PaidUntil       *time.Time
	CreatedAt       time.Time
	EndedAt         *time.Time
}

func (r Rental) Active() bool { return r.EndedAt == nil }

type RentalHistoryRow struct {
	Rental
	ScooterLabel string
}

// PaymentMethod credentials are an opaque provider-specific payload; the
// orchestrator only reads them and hands them to the provider client.
type PaymentMethod struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Provider    string
	Credentials []byte
	CreatedAt   time.Time
}
