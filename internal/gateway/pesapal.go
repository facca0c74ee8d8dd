package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

type PesapalConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string // override for tests; defaults to pay.pesapal.com
	CallbackURL    string
	NotificationID string // registered IPN id
	Timeout        time.Duration
}

// Pesapal implements the PesaPal adapter (API 3.0). Payouts are not part
// of its merchant API.
type Pesapal struct {
	cfg    PesapalConfig
	client *apiClient
}

func NewPesapal(cfg PesapalConfig) *Pesapal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pay.pesapal.com/v3"
	}
	return &Pesapal{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (p *Pesapal) Gateway() domain.Gateway { return domain.GatewayPesapal }

func (p *Pesapal) accessToken(ctx context.Context) (string, error) {
	body := map[string]string{
		"consumer_key":    p.cfg.ConsumerKey,
		"consumer_secret": p.cfg.ConsumerSecret,
	}
	var out struct {
		Token string `json:"token"`
	}
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/api/Auth/RequestToken", nil, body, &out)
	if err != nil {
		return "", err
	}
	if status != 200 || out.Token == "" {
		return "", fmt.Errorf("%w: token request returned %d", domain.ErrGatewayUnavailable, status)
	}
	return out.Token, nil
}

func (p *Pesapal) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"id":              req.OrderID,
		"currency":        req.Currency,
		"amount":          amountString(req.AmountCents),
		"description":     req.Description,
		"callback_url":    p.cfg.CallbackURL,
		"notification_id": p.cfg.NotificationID,
		"billing_address": map[string]string{"email_address": req.CustomerEmail},
	}

	var out struct {
		OrderTrackingID string `json:"order_tracking_id"`
		RedirectURL     string `json:"redirect_url"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := p.client.doJSON(ctx, "POST",
		p.cfg.BaseURL+"/api/Transactions/SubmitOrderRequest", headers, body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}
	return &CheckoutSession{ExternalRef: out.OrderTrackingID, CheckoutURL: out.RedirectURL}, nil
}

func (p *Pesapal) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var out struct {
		PaymentStatusDescription string `json:"payment_status_description"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := p.client.doJSON(ctx, "GET",
		p.cfg.BaseURL+"/api/Transactions/GetTransactionStatus?orderTrackingId="+url.QueryEscape(externalRef),
		headers, nil, &out)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: status lookup returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch out.PaymentStatusDescription {
	case "Completed":
		return domain.PaymentCompleted, nil
	case "Failed", "Invalid", "Reversed":
		return domain.PaymentFailed, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (p *Pesapal) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	return nil, fmt.Errorf("%w: pesapal has no payout API", domain.ErrUnsupported)
}

func (p *Pesapal) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"confirmation_code": externalRef,
		"amount":            amountString(amountCents),
		"remarks":           "Marketplace refund",
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := p.client.doJSON(ctx, "POST",
		p.cfg.BaseURL+"/api/Transactions/RefundRequest", headers, body, nil)
	if err != nil {
		return err
	}
	return classifyPayoutStatus(status)
}
