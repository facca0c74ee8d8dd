package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/gradesworld/paycore/internal/domain"
)

// Event is a provider notification normalized down to what reconciliation
// needs. Status is empty when the provider's notification carries no
// authoritative outcome (PesaPal IPNs); the handler then polls the
// provider through the adapter instead.
type Event struct {
	Gateway     domain.Gateway
	Type        string
	ExternalRef string
	Status      domain.PaymentStatus
}

// Parse decodes a provider's native payload shape into an Event.
func Parse(gw domain.Gateway, body []byte) (*Event, error) {
	switch gw {
	case domain.GatewayStripe:
		return parseStripe(body)
	case domain.GatewayPayPal:
		return parsePayPal(body)
	case domain.GatewayMpesa:
		return parseMpesa(body)
	case domain.GatewayPaystack:
		return parsePaystack(body)
	case domain.GatewayPesapal:
		return parsePesapal(body)
	case domain.GatewayIntaSend:
		return parseIntaSend(body)
	default:
		return nil, fmt.Errorf("no webhook parser for gateway %q", gw)
	}
}

func parseStripe(body []byte) (*Event, error) {
	var payload struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}

	ev := &Event{Gateway: domain.GatewayStripe, Type: payload.Type, ExternalRef: payload.Data.Object.ID}
	switch payload.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		ev.Status = domain.PaymentCompleted
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		ev.Status = domain.PaymentFailed
	}
	return ev, nil
}

func parsePayPal(body []byte) (*Event, error) {
	var payload struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode paypal event: %w", err)
	}

	// Capture events reference the checkout order through
	// supplementary_data; order events carry the order id directly.
	ref := payload.Resource.SupplementaryData.RelatedIDs.OrderID
	if ref == "" {
		ref = payload.Resource.ID
	}

	ev := &Event{Gateway: domain.GatewayPayPal, Type: payload.EventType, ExternalRef: ref}
	switch payload.EventType {
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.COMPLETED":
		ev.Status = domain.PaymentCompleted
	case "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.VOIDED":
		ev.Status = domain.PaymentFailed
	}
	return ev, nil
}

func parseMpesa(body []byte) (*Event, error) {
	var payload struct {
		Body struct {
			StkCallback struct {
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        int    `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode mpesa callback: %w", err)
	}

	cb := payload.Body.StkCallback
	ev := &Event{Gateway: domain.GatewayMpesa, Type: "stk_callback", ExternalRef: cb.CheckoutRequestID}
	if cb.ResultCode == 0 {
		ev.Status = domain.PaymentCompleted
	} else {
		ev.Status = domain.PaymentFailed
	}
	return ev, nil
}

func parsePaystack(body []byte) (*Event, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode paystack event: %w", err)
	}

	ev := &Event{Gateway: domain.GatewayPaystack, Type: payload.Event, ExternalRef: payload.Data.Reference}
	switch payload.Event {
	case "charge.success":
		ev.Status = domain.PaymentCompleted
	case "charge.failed":
		ev.Status = domain.PaymentFailed
	}
	return ev, nil
}

// parsePesapal handles IPN notifications, which name the transaction but
// not its outcome; Status stays empty so the handler queries the
// provider for the authoritative state.
func parsePesapal(body []byte) (*Event, error) {
	var payload struct {
		OrderTrackingID      string `json:"OrderTrackingId"`
		OrderNotificationTyp string `json:"OrderNotificationType"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode pesapal ipn: %w", err)
	}
	return &Event{
		Gateway:     domain.GatewayPesapal,
		Type:        payload.OrderNotificationTyp,
		ExternalRef: payload.OrderTrackingID,
	}, nil
}

func parseIntaSend(body []byte) (*Event, error) {
	var payload struct {
		InvoiceID string `json:"invoice_id"`
		State     string `json:"state"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode intasend event: %w", err)
	}

	ev := &Event{Gateway: domain.GatewayIntaSend, Type: "invoice." + payload.State, ExternalRef: payload.InvoiceID}
	switch payload.State {
	case "COMPLETE", "SUCCESSFUL":
		ev.Status = domain.PaymentCompleted
	case "FAILED", "CANCELLED":
		ev.Status = domain.PaymentFailed
	}
	return ev, nil
}
