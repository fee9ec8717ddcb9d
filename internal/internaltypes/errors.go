package internaltypes

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Expected, recoverable-by-the-caller outcomes. The API layer maps these
	// to transport status codes; inside the orchestrator they are matched with
	// errors.Is and never retried.
	ErrScooterNotFound        = errors.New("scooter not found")
	ErrScooterUnavailable     = errors.New("scooter unavailable")
	ErrUserHasReservation     = errors.New("user already holds a reservation")
	ErrReservationGone        = errors.New("reservation already ended")
	ErrRentalEnded            = errors.New("rental already ended")
	ErrPaymentMethodNotFound  = errors.New("payment method not found")
	ErrPaymentServiceNotFound = errors.New("no client for payment provider")
	ErrPaymentFailed          = errors.New("payment declined")
)

// ErrPaymentRollbackFailed means a compensating rollback failed after the
// provider had committed funds: booking state and money have diverged. It must
// be surfaced loudly, never swallowed or retried automatically.
var ErrPaymentRollbackFailed = errors.New("payment rollback failed")
