package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

type MpesaConfig struct {
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	BaseURL            string // override for tests; defaults to Safaricom production
	CallbackURL        string
	ResultURL          string
	TimeoutURL         string
	Timeout            time.Duration
}

// Mpesa implements the M-Pesa adapter: STK push for collection, B2C for
// payouts. Amounts are rounded to whole shillings; the API takes no
// decimals.
type Mpesa struct {
	cfg    MpesaConfig
	client *apiClient
}

func NewMpesa(cfg MpesaConfig) *Mpesa {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.safaricom.co.ke"
	}
	return &Mpesa{cfg: cfg, client: newAPIClient(cfg.Timeout)}
}

func (m *Mpesa) Gateway() domain.Gateway { return domain.GatewayMpesa }

func (m *Mpesa) accessToken(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	headers := map[string]string{"Authorization": basicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)}
	status, err := m.client.doJSON(ctx, "GET",
		m.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", headers, nil, &out)
	if err != nil {
		return "", err
	}
	if status != 200 || out.AccessToken == "" {
		return "", fmt.Errorf("%w: token request returned %d", domain.ErrGatewayUnavailable, status)
	}
	return out.AccessToken, nil
}

// stkPassword is base64(shortcode + passkey + timestamp) per the Daraja
// STK push contract.
func (m *Mpesa) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))
}

func (m *Mpesa) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number required for mpesa", domain.ErrInvalidAmount)
	}

	token, err := m.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]any{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          m.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            strconv.FormatInt(wholeUnits(req.AmountCents), 10),
		"PartyA":            req.PhoneNumber,
		"PartyB":            m.cfg.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       m.cfg.CallbackURL,
		"AccountReference":  req.OrderID,
		"TransactionDesc":   req.Description,
	}

	var out struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := m.client.doJSON(ctx, "POST",
		m.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", headers, body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyCheckoutStatus(status); err != nil {
		return nil, err
	}
	if out.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push response had no CheckoutRequestID", domain.ErrGatewayUnavailable)
	}

	// STK push has no redirect; the buyer confirms on the handset.
	return &CheckoutSession{ExternalRef: out.CheckoutRequestID}, nil
}

func (m *Mpesa) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]any{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          m.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": externalRef,
	}

	var out struct {
		ResultCode string `json:"ResultCode"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := m.client.doJSON(ctx, "POST",
		m.cfg.BaseURL+"/mpesa/stkpushquery/v1/query", headers, body, &out)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("%w: stk query returned %d", domain.ErrGatewayUnavailable, status)
	}

	switch out.ResultCode {
	case "0":
		return domain.PaymentCompleted, nil
	case "1032", "1037", "1": // cancelled by user, timeout, insufficient funds
		return domain.PaymentFailed, nil
	default:
		return domain.PaymentPending, nil
	}
}

func (m *Mpesa) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*PayoutResult, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"InitiatorName":      m.cfg.InitiatorName,
		"SecurityCredential": m.cfg.SecurityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             strconv.FormatInt(wholeUnits(amountCents), 10),
		"PartyA":             m.cfg.ShortCode,
		"PartyB":             destination,
		"Remarks":            "Paper earnings payout",
		"QueueTimeOutURL":    m.cfg.TimeoutURL,
		"ResultURL":          m.cfg.ResultURL,
		"Occasion":           "Payout",
	}

	var out struct {
		ConversationID string `json:"ConversationID"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := m.client.doJSON(ctx, "POST",
		m.cfg.BaseURL+"/mpesa/b2c/v1/paymentrequest", headers, body, &out)
	if err != nil {
		return nil, err
	}
	if err := classifyPayoutStatus(status); err != nil {
		return nil, err
	}
	return &PayoutResult{ProviderTxID: out.ConversationID}, nil
}

func (m *Mpesa) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	// M-Pesa reversals go through a manual support flow, not the API.
	return fmt.Errorf("%w: mpesa refunds are handled manually", domain.ErrUnsupported)
}
