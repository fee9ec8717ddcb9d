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

const rentalCols = `id, user_id, scooter_id, kind, payment_method_id, expires_at, paid_until, created_at, ended_at`

func scanRental(row db.Row) (Rental, error) {
	var r Rental
	err := row.Scan(&r.ID, &r.UserID, &r.ScooterID, &r.Kind, &r.PaymentMethodID, &r.ExpiresAt, &r.PaidUntil, &r.CreatedAt, &r.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rental{}, internaltypes.ErrNotFound
	}
	if err != nil {
		return Rental{}, err
	}
	return r, nil
}

func (s *Store) InsertRental(ctx context.Context, tx pgx.Tx, r Rental) (Rental, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
INSERT INTO rentals (id, user_id, scooter_id, kind, payment_method_id, expires_at, paid_until, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.UserID, r.ScooterID, r.Kind, r.PaymentMethodID, r.ExpiresAt, r.PaidUntil, r.CreatedAt,
	)
	if err != nil {
		return Rental{}, err
	}
	return r, nil
}

func (s *Store) GetRental(ctx context.Context, id uuid.UUID) (Rental, error) {
	return scanRental(s.db.QueryRow(ctx, `SELECT `+rentalCols+` FROM rentals WHERE id=$1`, id))
}

func (s *Store) GetRentalForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Rental, error) {
	return scanRental(tx.QueryRow(ctx, `SELECT `+rentalCols+` FROM rentals WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) MarkRentalEnded(ctx context.Context, tx pgx.Tx, id uuid.UUID, endedAt time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE rentals SET ended_at=$2 WHERE id=$1 AND ended_at IS NULL`, id, endedAt)
	return err
}

func (s *Store) AdvancePaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE rentals SET paid_until=$2 WHERE id=$1`, id, paidUntil)
	return err
}

func (s *Store) ListRentalsByUser(ctx context.Context, userID uuid.UUID) ([]RentalHistoryRow, error) {
	rows, err := s.db.Query(ctx, `
SELECT r.id, r.user_id, r.scooter_id, r.kind, r.payment_method_id, r.expires_at, r.paid_until, r.created_at, r.ended_at,
       COALESCE(s.label, '')
FROM rentals r
LEFT JOIN scooters s ON s.id = r.scooter_id
WHERE r.user_id=$1
ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RentalHistoryRow
	for rows.Next() {
		var h RentalHistoryRow
		if err := rows.Scan(&h.ID, &h.UserID, &h.ScooterID, &h.Kind, &h.PaymentMethodID, &h.ExpiresAt, &h.PaidUntil, &h.CreatedAt, &h.EndedAt, &h.ScooterLabel); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListActiveRentals returns rentals with no terminal state; used by the
// reconciliation sweep.
func (s *Store) ListActiveRentals(ctx context.Context) ([]Rental, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rentalCols+` FROM rentals WHERE ended_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rental
	for rows.Next() {
		var r Rental
		if err := rows.Scan(&r.ID, &r.UserID, &r.ScooterID, &r.Kind, &r.PaymentMethodID, &r.ExpiresAt, &r.PaidUntil, &r.CreatedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
