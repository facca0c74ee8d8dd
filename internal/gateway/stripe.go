package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

type StripeConfig struct {
	SecretKey  string
	BaseURL    string // override for tests; defaults to the live API
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

// Stripe implements the card-network adapter on Stripe Checkout Sessions.
type Stripe struct {
	cfg    StripeConfig
	client *apiClient
}

func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	return &Stripe{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (s *Stripe) Gateway() domain.Gateway { return domain.GatewayStripe }

func (s *Stripe) authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.cfg.SecretKey}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
}

func (s *Stripe) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.cfg.SuccessURL)
	form.Set("cancel_url", s.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("metadata[order_id]", req.OrderID)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	var sess stripeSession
	status, err := s.client.doForm(ctx, "POST", s.cfg.BaseURL+"/v1/checkout/sessions",
		s.authHeader(), form, &sess)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}
	return &CheckoutSession{ExternalRef: sess.ID, CheckoutURL: sess.URL}, nil
}

func (s *Stripe) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	var sess stripeSession
	status, err := s.client.doJSON(ctx, "GET",
		s.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(externalRef),
		s.authHeader(), nil, &sess)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: session lookup returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch sess.PaymentStatus {
	case "paid":
		return domain.PaymentCompleted, nil
	case "unpaid", "no_payment_required":
		return domain.PaymentPending, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (s *Stripe) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", currency)
	form.Set("destination", destination)

	var transfer struct {
		ID string `json:"id"`
	}
	status, err := s.client.doForm(ctx, "POST", s.cfg.BaseURL+"/v1/transfers",
		s.authHeader(), form, &transfer)
	if err != nil {
		return nil, err
	}
	if err := classifyPayoutStatus(status); err != nil {
		return nil, err
	}
	return &PayoutResult{ProviderTxID: transfer.ID}, nil
}

func (s *Stripe) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	form := url.Values{}
	form.Set("payment_intent", externalRef)
	form.Set("amount", strconv.FormatInt(amountCents, 10))

	status, err := s.client.doForm(ctx, "POST", s.cfg.BaseURL+"/v1/refunds",
		s.authHeader(), form, nil)
	if err != nil {
		return err
	}
	return classifyPayoutStatus(status)
}
