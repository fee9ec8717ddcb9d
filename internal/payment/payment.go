// Package payment is a uniform interface over heterogeneous external payment
// providers. Each provider speaks its own HTTP dialect and status codes; only
// the provider-defined success code counts as success, and anything else
// (declines, timeouts, network failures) is surfaced as a failure.
package payment

import (
	"context"
	"fmt"

	"github.com/example/scooter-rentals/internal/internaltypes"
)

// Provider is the minimal contract the saga needs: request an authorization,
// commit it, or roll it back. Rollback is assumed idempotent and available
// even after Commit (provider contract).
type Provider interface {
	Name() string
	Authorize(ctx context.Context, credentials []byte, amountCents int64) (token string, err error)
	Commit(ctx context.Context, token string) error
	Rollback(ctx context.Context, token string) error
}

// Registry maps a payment method's stored provider tag to its client.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(tag string) (Provider, error) {
	p, ok := r.providers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", internaltypes.ErrPaymentServiceNotFound, tag)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
