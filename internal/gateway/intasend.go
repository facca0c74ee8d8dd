package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

type IntaSendConfig struct {
	SecretKey   string
	BaseURL     string // override for tests; defaults to the live API
	RedirectURL string
	Timeout     time.Duration
}

// IntaSend implements the IntaSend adapter: hosted checkout for
// collection, send-money for payouts.
type IntaSend struct {
	cfg    IntaSendConfig
	client *apiClient
}

func NewIntaSend(cfg IntaSendConfig) *IntaSend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://payment.intasend.com"
	}
	return &IntaSend{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (i *IntaSend) Gateway() domain.Gateway { return domain.GatewayIntaSend }

func (i *IntaSend) authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + i.cfg.SecretKey}
}

func (i *IntaSend) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body := map[string]any{
		"amount":       amountString(req.AmountCents),
		"currency":     req.Currency,
		"email":        req.CustomerEmail,
		"phone_number": req.PhoneNumber,
		"api_ref":      req.OrderID,
		"redirect_url": i.cfg.RedirectURL,
	}

	var out struct {
		URL       string `json:"url"`
		InvoiceID string `json:"invoice_id"`
	}
	status, err := i.client.doJSON(ctx, "POST", i.cfg.BaseURL+"/api/v1/checkout/",
		i.authHeader(), body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}
	return &CheckoutSession{ExternalRef: out.InvoiceID, CheckoutURL: out.URL}, nil
}

func (i *IntaSend) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	body := map[string]string{"invoice_id": externalRef}

	var out struct {
		Invoice struct {
			State string `json:"state"`
		} `json:"invoice"`
	}
	status, err := i.client.doJSON(ctx, "POST", i.cfg.BaseURL+"/api/v1/payment/status/",
		i.authHeader(), body, &out)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: status lookup returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch out.Invoice.State {
	case "COMPLETE", "SUCCESSFUL":
		return domain.PaymentCompleted, nil
	case "FAILED", "CANCELLED":
		return domain.PaymentFailed, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (i *IntaSend) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	body := map[string]any{
		"currency": currency,
		"transactions": []map[string]any{{
			"account": destination,
			"amount":  amountString(amountCents),
		}},
	}

	var out struct {
		TrackingID string `json:"tracking_id"`
	}
	status, err := i.client.doJSON(ctx, "POST", i.cfg.BaseURL+"/api/v1/send-money/initiate/",
		i.authHeader(), body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyPayoutStatus(status); err != nil {
		return nil, err
	}
	return &PayoutResult{ProviderTxID: out.TrackingID}, nil
}

func (i *IntaSend) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	return fmt.Errorf("%w: intasend refunds are handled manually", domain.ErrUnsupported)
}
