// Package saga makes "debit the user" and "commit the booking" look atomic
// even though they span two systems: charge first, then book, compensating the
// charge with a provider rollback when the booking transaction fails.
package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/scooter-rentals/internal/internaltypes"
	"github.com/example/scooter-rentals/internal/metrics"
	"github.com/example/scooter-rentals/internal/payment"
	"github.com/example/scooter-rentals/internal/store"
)

type Methods interface {
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (store.PaymentMethod, error)
}

type Providers interface {
	Get(tag string) (payment.Provider, error)
}

type Coordinator struct {
	methods   Methods
	providers Providers
	log       *slog.Logger
}

func New(methods Methods, providers Providers, log *slog.Logger) *Coordinator {
	return &Coordinator{methods: methods, providers: providers, log: log}
}

// RunCharge authorizes and commits amountCents against the stored payment
// method, then runs book (the caller-supplied data mutation, typically a
// store transaction). The method must belong to userID; a method owned by
// someone else is reported as not found rather than revealing it exists. If
// book fails after the charge committed, the charge is rolled back and book's
// error is returned. A failed rollback is escalated as
// ErrPaymentRollbackFailed: money and booking state have diverged and the
// error must reach an operator.
func (c *Coordinator) RunCharge(ctx context.Context, userID, methodID uuid.UUID, amountCents int64, book func(ctx context.Context) error) error {
	method, err := c.methods.GetPaymentMethod(ctx, methodID)
	if err != nil {
		return err
	}
	if method.UserID != userID {
		c.log.Warn("charge attempted against another user's payment method",
			"user_id", userID, "method_id", methodID)
		return internaltypes.ErrPaymentMethodNotFound
	}
	provider, err := c.providers.Get(method.Provider)
	if err != nil {
		return err
	}

	token, err := provider.Authorize(ctx, method.Credentials, amountCents)
	if err != nil {
		// nothing happened yet, no compensation needed
		metrics.SagaCharges.WithLabelValues(metrics.OutcomeDeclined).Inc()
		return fmt.Errorf("%w: %v", internaltypes.ErrPaymentFailed, err)
	}

	if err := provider.Commit(ctx, token); err != nil {
		// provider contract: a failed commit means no funds moved
		metrics.SagaCharges.WithLabelValues(metrics.OutcomeDeclined).Inc()
		return fmt.Errorf("%w: %v", internaltypes.ErrPaymentFailed, err)
	}

	if bookErr := book(ctx); bookErr != nil {
		if rbErr := provider.Rollback(ctx, token); rbErr != nil {
			metrics.SagaCharges.WithLabelValues(metrics.OutcomeRollbackFailed).Inc()
			c.log.Error("payment rollback failed after booking failure; funds and booking state diverged",
				"provider", provider.Name(), "method_id", methodID, "amount_cents", amountCents,
				"book_err", bookErr, "rollback_err", rbErr)
			return fmt.Errorf("%w: %v (booking failed: %v)", internaltypes.ErrPaymentRollbackFailed, rbErr, bookErr)
		}
		metrics.SagaCharges.WithLabelValues(metrics.OutcomeBookFailed).Inc()
		c.log.Warn("booking failed after charge, payment rolled back",
			"provider", provider.Name(), "method_id", methodID, "err", bookErr)
		return bookErr
	}

	metrics.SagaCharges.WithLabelValues(metrics.OutcomeOK).Inc()
	return nil
}
