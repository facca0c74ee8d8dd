package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

type PayPalConfig struct {
	ClientID  string
	Secret    string
	BaseURL   string // override for tests; defaults to the live API
	ReturnURL string
	CancelURL string
	Timeout   time.Duration
}

// PayPal implements the wallet-provider adapter on the Orders v2 and
// Payouts v1 APIs.
type PayPal struct {
	cfg    PayPalConfig
	client *apiClient
}

func NewPayPal(cfg PayPalConfig) *PayPal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-m.paypal.com"
	}
	return &PayPal{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (p *PayPal) Gateway() domain.Gateway { return domain.GatewayPayPal }

// AccessToken fetches an OAuth bearer token. Exported because the webhook
// verifier needs the same token for its verification round-trip.
func (p *PayPal) AccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	headers := map[string]string{"Authorization": basicAuth(p.cfg.ClientID, p.cfg.Secret)}
	status, err := p.client.doForm(ctx, "POST", p.cfg.BaseURL+"/v1/oauth2/token", headers, form, &out)
	if err != nil {
		return "", err
	}
	if status != 200 || out.AccessToken == "" {
		return "", fmt.Errorf("%w: token request returned %d", domain.ErrGatewayUnavailable, status)
	}
	return out.AccessToken, nil
}

func (p *PayPal) bearer(ctx context.Context) (map[string]string, error) {
	token, err := p.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (p *PayPal) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	headers, err := p.bearer(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id":   req.OrderID,
			"description": req.Description,
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         amountString(req.AmountCents),
			},
		}},
		"application_context": map[string]string{
			"return_url": p.cfg.ReturnURL,
			"cancel_url": p.cfg.CancelURL,
		},
	}

	var order paypalOrder
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/v2/checkout/orders", headers, body, &order)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
		}
	}
	return &CheckoutSession{ExternalRef: order.ID, CheckoutURL: approveURL}, nil
}

func (p *PayPal) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	headers, err := p.bearer(ctx)
	if err != nil {
		return "", err
	}

	var order paypalOrder
	status, err := p.client.doJSON(ctx, "GET",
		p.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(externalRef), headers, nil, &order)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: order lookup returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch order.Status {
	case "COMPLETED", "APPROVED":
		return domain.PaymentCompleted, nil
	case "VOIDED":
		return domain.PaymentFailed, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (p *PayPal) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	headers, err := p.bearer(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"sender_batch_header": map[string]string{
			"sender_batch_id": "payout-" + uuid.NewString(),
			"email_subject":   "You have a payout!",
		},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"receiver":       destination,
			"amount": map[string]string{
				"value":    amountString(amountCents),
				"currency": currency,
			},
		}},
	}

	var out struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	status, err := p.client.doJSON(ctx, "POST", p.cfg.BaseURL+"/v1/payments/payouts", headers, body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyPayoutStatus(status); err != nil {
		return nil, err
	}
	return &PayoutResult{ProviderTxID: out.BatchHeader.PayoutBatchID}, nil
}

func (p *PayPal) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	headers, err := p.bearer(ctx)
	if err != nil {
		return err
	}

	status, err := p.client.doJSON(ctx, "POST",
		p.cfg.BaseURL+"/v2/payments/captures/"+url.PathEscape(externalRef)+"/refund",
		headers, map[string]any{}, nil)
	if err != nil {
		return err
	}
	return classifyPayoutStatus(status)
}
