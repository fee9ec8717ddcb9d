package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/internaltypes"
)

func (s *Store) InsertPaymentMethod(ctx context.Context, userID uuid.UUID, provider string, credentials []byte) (PaymentMethod, error) {
	m := PaymentMethod{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    provider,
		Credentials: credentials,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.db.Exec(ctx,
		`INSERT INTO payment_methods (id, user_id, provider, credentials, created_at) VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.UserID, m.Provider, m.Credentials, m.CreatedAt,
	)
	if err != nil {
		return PaymentMethod{}, err
	}
	return m, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, user_id, provider, credentials, created_at FROM payment_methods WHERE id=$1`, id)
	var m PaymentMethod
	err := row.Scan(&m.ID, &m.UserID, &m.Provider, &m.Credentials, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentMethod{}, internaltypes.ErrPaymentMethodNotFound
	}
	if err != nil {
		return PaymentMethod{}, err
	}
	return m, nil
}
