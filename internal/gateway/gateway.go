package gateway

import (
	"context"
	"fmt"

	"github.com/gradesworld/paycore/internal/domain"
)

// CheckoutRequest carries everything an adapter needs to open a provider
// session for an order. Amounts are minor units in the given currency.
type CheckoutRequest struct {
	OrderID       string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	Description   string
	PhoneNumber   string // required by mobile-money providers
}

// CheckoutSession is the normalized result of InitiateCheckout.
// CheckoutURL is empty for push-based providers (M-Pesa STK push), where
// the buyer confirms on their handset instead of being redirected.
type CheckoutSession struct {
	ExternalRef string `json:"external_reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// PayoutResult is the normalized result of InitiatePayout.
type PayoutResult struct {
	ProviderTxID string `json:"provider_transaction_id"`
}

// Adapter is the single interface all six providers implement. Adapters
// perform outbound HTTP only; every local state change belongs to the
// reconciliation and withdrawal services.
type Adapter interface {
	Gateway() domain.Gateway

	// InitiateCheckout constructs a provider session for the order amount,
	// tagging it with the order id in provider metadata. Returns
	// domain.ErrGatewayUnavailable on network/auth errors and
	// domain.ErrInvalidAmount when the provider rejects the
	// amount/currency combination.
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// VerifyPayment polls the provider for authoritative status. Used as
	// the fallback path when a webhook is delayed or inconclusive.
	VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error)

	// InitiatePayout moves money out to a seller destination. Returns
	// domain.ErrPayoutRejected (permanent) or domain.ErrGatewayUnavailable
	// (retryable).
	InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error)

	// Refund reverses a completed payment at the provider.
	Refund(ctx context.Context, externalRef string, amountCents int64) error
}

// Registry holds the closed set of adapters, selected by the gateway enum.
type Registry struct {
	adapters map[domain.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.Gateway]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Gateway()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Select(gw domain.Gateway) (Adapter, error) {
	a, ok := r.adapters[gw]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for gateway %q", gw)
	}
	return a, nil
}

// amountString renders minor units as a decimal string ("2000" -> "20.00"),
// the format the card and wallet providers expect.
func amountString(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// wholeUnits rounds minor units to whole currency units for providers that
// do not accept decimals (M-Pesa).
func wholeUnits(cents int64) int64 {
	return (cents + 50) / 100
}
