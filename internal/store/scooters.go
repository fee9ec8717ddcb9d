package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/db"
	"github.com/example/scooter-rentals/internal/internaltypes"
)

const scooterCols = `id, label, active_rental_id, reservation_id, created_at, updated_at`

func scanScooter(row db.Row) (Scooter, error) {
	var sc Scooter
	err := row.Scan(&sc.ID, &sc.Label, &sc.ActiveRentalID, &sc.ReservationID, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Scooter{}, internaltypes.ErrScooterNotFound
	}
	if err != nil {
		return Scooter{}, err
	}
	return sc, nil
}

func (s *Store) CreateScooter(ctx context.Context, label string) (Scooter, error) {
	sc := Scooter{ID: uuid.New(), Label: label}
	err := s.db.Exec(ctx,
		`INSERT INTO scooters (id, label) VALUES ($1,$2)`,
		sc.ID, sc.Label,
	)
	if err != nil {
		return Scooter{}, err
	}
	return s.GetScooter(ctx, sc.ID)
}

func (s *Store) GetScooter(ctx context.Context, id uuid.UUID) (Scooter, error) {
	return scanScooter(s.db.QueryRow(ctx, `SELECT `+scooterCols+` FROM scooters WHERE id=$1`, id))
}

// GetScooterForUpdate locks the scooter row for the rest of the transaction.
// Every availability check-then-write goes through this lock.
func (s *Store) GetScooterForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Scooter, error) {
	return scanScooter(tx.QueryRow(ctx, `SELECT `+scooterCols+` FROM scooters WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) SetScooterReservation(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, reservationID *uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE scooters SET reservation_id=$2, updated_at=$3 WHERE id=$1`,
		scooterID, reservationID, time.Now().UTC(),
	)
	return err
}

func (s *Store) SetScooterRental(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, rentalID *uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE scooters SET active_rental_id=$2, updated_at=$3 WHERE id=$1`,
		scooterID, rentalID, time.Now().UTC(),
	)
	return err
}

func (s *Store) ListScooters(ctx context.Context) ([]Scooter, error) {
	rows, err := s.db.Query(ctx, `SELECT `+scooterCols+` FROM scooters ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scooter
	for rows.Next() {
		var sc Scooter
		if err := rows.Scan(&sc.ID, &sc.Label, &sc.ActiveRentalID, &sc.ReservationID, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
