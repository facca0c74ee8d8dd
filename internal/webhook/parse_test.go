package webhook

import (
	"testing"

	"github.com/gradesworld/paycore/internal/domain"
)

func TestParseStripe(t *testing.T) {
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_9"}}}`)
	ev, err := Parse(domain.GatewayStripe, body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "cs_test_9" || ev.Status != domain.PaymentCompleted {
		t.Errorf("got %+v", ev)
	}

	body = []byte(`{"type":"checkout.session.expired","data":{"object":{"id":"cs_test_9"}}}`)
	ev, _ = Parse(domain.GatewayStripe, body)
	if ev.Status != domain.PaymentFailed {
		t.Errorf("expired session should map to failed, got %q", ev.Status)
	}
}

func TestParsePayPalCapturePrefersOrderID(t *testing.T) {
	body := []byte(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"supplementary_data": {"related_ids": {"order_id": "ORD-77"}}
		}
	}`)
	ev, err := Parse(domain.GatewayPayPal, body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "ORD-77" {
		t.Errorf("ref = %q, want the checkout order id", ev.ExternalRef)
	}
	if ev.Status != domain.PaymentCompleted {
		t.Errorf("status = %q", ev.Status)
	}
}

func TestParseMpesaResultCodes(t *testing.T) {
	ok := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`)
	ev, err := Parse(domain.GatewayMpesa, ok)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "ws_CO_1" || ev.Status != domain.PaymentCompleted {
		t.Errorf("got %+v", ev)
	}

	cancelled := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"cancelled"}}}`)
	ev, _ = Parse(domain.GatewayMpesa, cancelled)
	if ev.Status != domain.PaymentFailed {
		t.Errorf("nonzero ResultCode should map to failed, got %q", ev.Status)
	}
}

func TestParsePaystack(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ORDER_o3","status":"success"}}`)
	ev, err := Parse(domain.GatewayPaystack, body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "ORDER_o3" || ev.Status != domain.PaymentCompleted {
		t.Errorf("got %+v", ev)
	}
}

func TestParsePesapalHasNoStatus(t *testing.T) {
	body := []byte(`{"OrderTrackingId":"track-5","OrderNotificationType":"IPNCHANGE"}`)
	ev, err := Parse(domain.GatewayPesapal, body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "track-5" {
		t.Errorf("ref = %q", ev.ExternalRef)
	}
	if ev.Status != "" {
		t.Errorf("pesapal IPN carries no outcome; status should be empty, got %q", ev.Status)
	}
}

func TestParseIntaSend(t *testing.T) {
	body := []byte(`{"invoice_id":"inv-9","state":"COMPLETE","challenge":"sekrit"}`)
	ev, err := Parse(domain.GatewayIntaSend, body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ExternalRef != "inv-9" || ev.Status != domain.PaymentCompleted {
		t.Errorf("got %+v", ev)
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := Parse(domain.GatewayStripe, []byte(`not json`)); err == nil {
		t.Error("garbage payload should error")
	}
}
