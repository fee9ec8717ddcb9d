// Package metrics exposes prometheus collectors for the lifecycle
// orchestrator. Everything registers on the default registry and is served by
// the side listener in cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scooter_scheduler_jobs_fired_total",
		Help: "One-shot scheduler jobs that reached their fire time.",
	})

	SagaCharges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scooter_saga_charges_total",
		Help: "Payment saga outcomes.",
	}, []string{"outcome"})

	ReservationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scooter_reservations_started_total",
		Help: "Reservations successfully created.",
	})

	ReservationsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scooter_reservations_ended_total",
		Help: "Reservations ended, by reason.",
	}, []string{"reason"})

	RentalsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scooter_rentals_started_total",
		Help: "Rentals successfully started, by kind.",
	}, []string{"kind"})

	RentalsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scooter_rentals_ended_total",
		Help: "Rentals ended, by reason.",
	}, []string{"reason"})
)

const (
	OutcomeOK             = "ok"
	OutcomeDeclined       = "declined"
	OutcomeBookFailed     = "book_failed"
	OutcomeRollbackFailed = "rollback_failed"
)
