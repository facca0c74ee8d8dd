package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
)

func TestAmountString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{2000, "20.00"},
		{1, "0.01"},
		{150, "1.50"},
		{99999, "999.99"},
	}
	for _, c := range cases {
		if got := amountString(c.cents); got != c.want {
			t.Errorf("amountString(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestWholeUnits(t *testing.T) {
	if got := wholeUnits(2049); got != 20 {
		t.Errorf("wholeUnits(2049) = %d, want 20", got)
	}
	if got := wholeUnits(2050); got != 21 {
		t.Errorf("wholeUnits(2050) = %d, want 21", got)
	}
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry(NewPaystack(PaystackConfig{SecretKey: "sk"}))

	a, err := reg.Select(domain.GatewayPaystack)
	if err != nil {
		t.Fatalf("Select(paystack): %v", err)
	}
	if a.Gateway() != domain.GatewayPaystack {
		t.Errorf("got adapter for %q", a.Gateway())
	}

	if _, err := reg.Select(domain.GatewayStripe); err == nil {
		t.Error("Select(stripe) should fail for an empty registry slot")
	}
}

func TestPaystackCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("bad auth header %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["amount"].(float64) != 2000 {
			t.Errorf("amount = %v, want 2000 minor units", body["amount"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc",
				"reference":         "ORDER_o1",
			},
		})
	}))
	defer srv.Close()

	p := NewPaystack(PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL})
	sess, err := p.InitiateCheckout(context.Background(), CheckoutRequest{
		OrderID: "o1", AmountCents: 2000, Currency: "USD", CustomerEmail: "b@x.com",
	})
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if sess.ExternalRef != "ORDER_o1" || sess.CheckoutURL == "" {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestPaystackVerifyStatuses(t *testing.T) {
	cases := []struct {
		provider string
		want     domain.PaymentStatus
	}{
		{"success", domain.PaymentCompleted},
		{"failed", domain.PaymentFailed},
		{"abandoned", domain.PaymentFailed},
		{"ongoing", domain.PaymentPending},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]string{"status": c.provider},
			})
		}))
		p := NewPaystack(PaystackConfig{SecretKey: "sk", BaseURL: srv.URL})
		got, err := p.VerifyPayment(context.Background(), "ref1")
		srv.Close()
		if err != nil {
			t.Fatalf("VerifyPayment(%s): %v", c.provider, err)
		}
		if got != c.want {
			t.Errorf("provider status %q mapped to %q, want %q", c.provider, got, c.want)
		}
	}
}

func TestCheckoutAuthFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPaystack(PaystackConfig{SecretKey: "bad", BaseURL: srv.URL})
	_, err := p.InitiateCheckout(context.Background(), CheckoutRequest{OrderID: "o1", AmountCents: 100, Currency: "USD"})
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Errorf("401 should map to ErrGatewayUnavailable, got %v", err)
	}
}

func TestCheckoutRejectionIsInvalidAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewPaystack(PaystackConfig{SecretKey: "sk", BaseURL: srv.URL})
	_, err := p.InitiateCheckout(context.Background(), CheckoutRequest{OrderID: "o1", AmountCents: -5, Currency: "USD"})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("422 should map to ErrInvalidAmount, got %v", err)
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewPaystack(PaystackConfig{SecretKey: "sk", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := p.InitiateCheckout(context.Background(), CheckoutRequest{OrderID: "o1", AmountCents: 100, Currency: "USD"})
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Errorf("timeout should map to ErrGatewayUnavailable, got %v", err)
	}
}

func TestPayoutRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPaystack(PaystackConfig{SecretKey: "sk", BaseURL: srv.URL})
	_, err := p.InitiatePayout(context.Background(), "RCP_x", 5000, "USD")
	if !errors.Is(err, domain.ErrPayoutRejected) {
		t.Errorf("400 payout should map to ErrPayoutRejected, got %v", err)
	}
}

func TestStripeCheckoutForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type %q", ct)
		}
		r.ParseForm()
		if got := r.FormValue("metadata[order_id]"); got != "o7" {
			t.Errorf("metadata[order_id] = %q", got)
		}
		if got := r.FormValue("line_items[0][price_data][unit_amount]"); got != "2000" {
			t.Errorf("unit_amount = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_1",
			"url": "https://checkout.stripe.com/pay/cs_test_1",
		})
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk", BaseURL: srv.URL, SuccessURL: "https://x/success", CancelURL: "https://x/cancel"})
	sess, err := s.InitiateCheckout(context.Background(), CheckoutRequest{
		OrderID: "o7", AmountCents: 2000, Currency: "USD", Description: "Past papers",
	})
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if sess.ExternalRef != "cs_test_1" {
		t.Errorf("external ref %q", sess.ExternalRef)
	}
}

func TestStripeVerifyPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"payment_status": "paid"})
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk", BaseURL: srv.URL})
	got, err := s.VerifyPayment(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if got != domain.PaymentCompleted {
		t.Errorf("status %q, want completed", got)
	}
}

func TestMpesaCheckoutRequiresPhone(t *testing.T) {
	m := NewMpesa(MpesaConfig{})
	_, err := m.InitiateCheckout(context.Background(), CheckoutRequest{OrderID: "o1", AmountCents: 100, Currency: "KES"})
	if err == nil {
		t.Fatal("expected error without phone number")
	}
}

func TestMpesaRefundUnsupported(t *testing.T) {
	m := NewMpesa(MpesaConfig{})
	if err := m.Refund(context.Background(), "ws_CO_1", 100); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("mpesa refund should be ErrUnsupported, got %v", err)
	}
}

func TestPesapalPayoutUnsupported(t *testing.T) {
	p := NewPesapal(PesapalConfig{})
	if _, err := p.InitiatePayout(context.Background(), "acct", 100, "KES"); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("pesapal payout should be ErrUnsupported, got %v", err)
	}
}

func TestIntaSendVerifyStates(t *testing.T) {
	cases := []struct {
		state string
		want  domain.PaymentStatus
	}{
		{"COMPLETE", domain.PaymentCompleted},
		{"FAILED", domain.PaymentFailed},
		{"PROCESSING", domain.PaymentPending},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"invoice": map[string]string{"state": c.state},
			})
		}))
		i := NewIntaSend(IntaSendConfig{SecretKey: "sk", BaseURL: srv.URL})
		got, err := i.VerifyPayment(context.Background(), "inv1")
		srv.Close()
		if err != nil {
			t.Fatalf("VerifyPayment(%s): %v", c.state, err)
		}
		if got != c.want {
			t.Errorf("state %q mapped to %q, want %q", c.state, got, c.want)
		}
	}
}
