package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

// Verifier authenticates an inbound webhook before any database lookup
// happens. Implementations must fail closed: any doubt is
// domain.ErrSignatureInvalid.
type Verifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

// StripeVerifier checks the Stripe-Signature header: a timestamp and one
// or more v1 signatures, each HMAC-SHA256 over "<timestamp>.<payload>".
type StripeVerifier struct {
	Secret    string
	Tolerance time.Duration // replay window; defaults to 5 minutes
}

func (v StripeVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return fmt.Errorf("%w: missing Stripe-Signature header", domain.ErrSignatureInvalid)
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(sig, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			candidates = append(candidates, val)
		}
	}
	if ts == "" || len(candidates) == 0 {
		return fmt.Errorf("%w: malformed Stripe-Signature header", domain.ErrSignatureInvalid)
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	sent, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrSignatureInvalid)
	}
	if d := time.Since(time.Unix(sent, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	for _, c := range candidates {
		if subtle.ConstantTimeCompare([]byte(c), []byte(want)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", domain.ErrSignatureInvalid)
}

// HMACVerifier covers the providers that sign the raw body with a single
// shared-secret HMAC carried in one header. Paystack uses SHA-512; the
// mobile-money callbacks use SHA-256.
type HMACVerifier struct {
	Secret string
	Header string
	SHA512 bool
}

func (v HMACVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	got := header.Get(v.Header)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", domain.ErrSignatureInvalid, v.Header)
	}

	var mac []byte
	if v.SHA512 {
		h := hmac.New(sha512.New, []byte(v.Secret))
		h.Write(body)
		mac = h.Sum(nil)
	} else {
		h := hmac.New(sha256.New, []byte(v.Secret))
		h.Write(body)
		mac = h.Sum(nil)
	}
	want := hex.EncodeToString(mac)

	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return fmt.Errorf("%w: signature mismatch", domain.ErrSignatureInvalid)
	}
	return nil
}

// ChallengeVerifier checks the shared challenge token IntaSend echoes in
// every webhook payload.
type ChallengeVerifier struct {
	Challenge string
}

func (v ChallengeVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	var payload struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: unreadable payload", domain.ErrSignatureInvalid)
	}
	if payload.Challenge == "" ||
		subtle.ConstantTimeCompare([]byte(payload.Challenge), []byte(v.Challenge)) != 1 {
		return fmt.Errorf("%w: challenge mismatch", domain.ErrSignatureInvalid)
	}
	return nil
}

// tokenSource is the slice of the PayPal adapter the verifier needs.
type tokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// jsonPoster is satisfied by gateway.apiClient's doJSON shape; declared
// here so the verifier can be tested with a stub.
type jsonPoster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) (int, error)
}

// PayPalVerifier round-trips the webhook headers and body through
// PayPal's verify-webhook-signature endpoint. Any transport failure is a
// verification failure; we never accept an unverified PayPal event.
type PayPalVerifier struct {
	Tokens    tokenSource
	Client    jsonPoster
	BaseURL   string
	WebhookID string
}

func (v PayPalVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	token, err := v.Tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: token: %v", domain.ErrSignatureInvalid, err)
	}

	req := map[string]any{
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"webhook_id":        v.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := v.Client.PostJSON(ctx, v.BaseURL+"/v1/notifications/verify-webhook-signature", headers, req, &out)
	if err != nil {
		return fmt.Errorf("%w: verify call: %v", domain.ErrSignatureInvalid, err)
	}
	if status != 200 || out.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: verification_status=%q (http %d)", domain.ErrSignatureInvalid, out.VerificationStatus, status)
	}
	return nil
}
