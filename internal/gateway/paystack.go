package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

type PaystackConfig struct {
	SecretKey   string
	BaseURL     string // override for tests; defaults to api.paystack.co
	CallbackURL string
	Timeout     time.Duration
}

// Paystack implements the Paystack adapter. Amounts are already minor
// units (kobo/cents), which matches our internal representation directly.
type Paystack struct {
	cfg    PaystackConfig
	client *apiClient
}

func NewPaystack(cfg PaystackConfig) *Paystack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	return &Paystack{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (p *Paystack) Gateway() domain.Gateway { return domain.GatewayPaystack }

func (p *Paystack) authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.SecretKey}
}

func (p *Paystack) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body := map[string]any{
		"email":        req.CustomerEmail,
		"amount":       req.AmountCents,
		"currency":     req.Currency,
		"reference":    "ORDER_" + req.OrderID,
		"callback_url": p.cfg.CallbackURL,
		"metadata":     map[string]string{"order_id": req.OrderID},
	}

	var out struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/transaction/initialize",
		p.authHeader(), body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}
	return &CheckoutSession{
		ExternalRef: out.Data.Reference,
		CheckoutURL: out.Data.AuthorizationURL,
	}, nil
}

func (p *Paystack) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	status, err := p.client.doJSON(ctx, "GET",
		p.cfg.BaseURL+"/transaction/verify/"+url.PathEscape(externalRef),
		p.authHeader(), nil, &out)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: verify returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch out.Data.Status {
	case "success":
		return domain.PaymentCompleted, nil
	case "failed", "abandoned":
		return domain.PaymentFailed, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (p *Paystack) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    amountCents,
		"currency":  currency,
		"recipient": destination,
		"reason":    "Paper earnings payout",
	}

	var out struct {
		Data struct {
			TransferCode string `json:"transfer_code"`
		} `json:"data"`
	}
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/transfer",
		p.authHeader(), body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyPayoutStatus(status); err != nil {
		return nil, err
	}
	return &PayoutResult{ProviderTxID: out.Data.TransferCode}, nil
}

func (p *Paystack) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	body := map[string]any{
		"transaction": externalRef,
		"amount":      amountCents,
	}
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/refund",
		p.authHeader(), body, nil)
	if err != nil {
		return err
	}
	return classifyPayoutStatus(status)
}
