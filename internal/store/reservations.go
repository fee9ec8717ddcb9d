package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/scooter-rentals/internal/internaltypes"
)

func (s *Store) InsertReservation(ctx context.Context, tx pgx.Tx, userID, scooterID uuid.UUID, endsAt time.Time) (Reservation, error) {
	res := Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		ScooterID: scooterID,
		EndsAt:    endsAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO reservations (id, user_id, scooter_id, ends_at, created_at) VALUES ($1,$2,$3,$4,$5)`,
		res.ID, res.UserID, res.ScooterID, res.EndsAt, res.CreatedAt,
	)
	if err != nil {
		// unique indexes back the one-reservation-per-user/per-scooter
		// invariants against writers the row lock didn't serialize
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "idx_reservations_user" {
				return Reservation{}, internaltypes.ErrUserHasReservation
			}
			return Reservation{}, internaltypes.ErrScooterUnavailable
		}
		return Reservation{}, err
	}
	return res, nil
}

// GetReservationForUpdate locks the reservation row; a missing row maps to
// ErrReservationGone so racing end paths can treat it as a benign no-op.
func (s *Store) GetReservationForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Reservation, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, scooter_id, ends_at, created_at FROM reservations WHERE id=$1 FOR UPDATE`, id)
	var res Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.ScooterID, &res.EndsAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, internaltypes.ErrReservationGone
	}
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (s *Store) DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internaltypes.ErrReservationGone
	}
	return nil
}

func (s *Store) getReservationDetail(ctx context.Context, where string, arg any) (ReservationDetail, error) {
	row := s.db.QueryRow(ctx, `
SELECT r.id, r.user_id, r.scooter_id, r.ends_at, r.created_at, s.label
FROM reservations r
LEFT JOIN scooters s ON s.id = r.scooter_id
WHERE `+where, arg)

	var d ReservationDetail
	var label *string
	err := row.Scan(&d.ID, &d.UserID, &d.ScooterID, &d.EndsAt, &d.CreatedAt, &label)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReservationDetail{}, internaltypes.ErrNotFound
	}
	if err != nil {
		return ReservationDetail{}, err
	}
	if label == nil {
		d.Dangling = true
	} else {
		d.ScooterLabel = *label
	}
	return d, nil
}

func (s *Store) GetReservationByUser(ctx context.Context, userID uuid.UUID) (ReservationDetail, error) {
	return s.getReservationDetail(ctx, `r.user_id=$1`, userID)
}

func (s *Store) GetReservationByScooter(ctx context.Context, scooterID uuid.UUID) (ReservationDetail, error) {
	return s.getReservationDetail(ctx, `r.scooter_id=$1`, scooterID)
}

// ListReservations returns every live reservation; used by the reconciliation
// sweep to re-derive expiry jobs.
func (s *Store) ListReservations(ctx context.Context) ([]Reservation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, scooter_id, ends_at, created_at FROM reservations ORDER BY ends_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.ScooterID, &res.EndsAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
