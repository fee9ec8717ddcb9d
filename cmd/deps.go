package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/scooter-rentals/internal/booking"
	"github.com/example/scooter-rentals/internal/config"
	"github.com/example/scooter-rentals/internal/db"
	"github.com/example/scooter-rentals/internal/migrate"
	"github.com/example/scooter-rentals/internal/payment"
	"github.com/example/scooter-rentals/internal/reconcile"
	"github.com/example/scooter-rentals/internal/saga"
	"github.com/example/scooter-rentals/internal/scheduler"
	"github.com/example/scooter-rentals/internal/store"
)

// app wires the orchestrator once per process: scheduler, store handle and
// payment-client registry are constructed here and injected into the managers.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	db    *db.DB
	store *store.Store
	sched *scheduler.Scheduler

	reservations *booking.ReservationManager
	rentals      *booking.RentalManager
	sweeper      *reconcile.Sweeper
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, err
	}

	st := store.New(d)
	sched := scheduler.New(ctx, log)

	registry := payment.NewRegistry(
		payment.NewPayline(cfg.PaylineBaseURL, cfg.PaylineAPIKey),
		payment.NewVaultpay(cfg.VaultpayBaseURL, cfg.VaultpayToken),
	)
	charger := saga.New(st, registry, log)

	reservations := booking.NewReservationManager(st, sched, cfg.ReservationTTL, log)
	rentals := booking.NewRentalManager(st, sched, charger, reservations,
		cfg.ExtensionInterval, cfg.MaxRentalDuration, cfg.PricePerIntervalCents, log)
	sweeper := reconcile.NewSweeper(st, reservations, rentals, log)

	return &app{
		cfg:          cfg,
		log:          log,
		db:           d,
		store:        st,
		sched:        sched,
		reservations: reservations,
		rentals:      rentals,
		sweeper:      sweeper,
	}, nil
}

func (a *app) Close() {
	a.sched.Stop()
	a.db.Close()
}
