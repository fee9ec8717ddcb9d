// Package store is the availability-store accessor: thin transactional
// read/write operations over scooter, reservation, rental and payment-method
// rows. The managers own the sequencing of these calls inside a transaction;
// this package owns only the SQL.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/db"
)

type Store struct {
	db *db.DB
}

func New(d *db.DB) *Store { return &Store{db: d} }

// InTx runs fn in a serializable transaction on the underlying pool.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return s.db.InTx(ctx, fn)
}
