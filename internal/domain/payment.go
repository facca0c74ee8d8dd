package domain

import "time"

type Gateway string

const (
	GatewayStripe   Gateway = "stripe"
	GatewayPayPal   Gateway = "paypal"
	GatewayMpesa    Gateway = "mpesa"
	GatewayPaystack Gateway = "paystack"
	GatewayPesapal  Gateway = "pesapal"
	GatewayIntaSend Gateway = "intasend"
)

// Gateways is the closed set of supported providers. Adding a provider means
// adding a constant here plus an adapter implementation, nothing else.
var Gateways = []Gateway{
	GatewayStripe, GatewayPayPal, GatewayMpesa,
	GatewayPaystack, GatewayPesapal, GatewayIntaSend,
}

func (g Gateway) Valid() bool {
	for _, known := range Gateways {
		if g == known {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is the unified record of one checkout attempt with one provider.
// ExternalID is the gateway-assigned reference, unique per gateway.
// Amounts are in minor units (cents).
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id,omitempty"`
	Gateway       Gateway       `json:"gateway"`
	ExternalID    string        `json:"external_id"`
	AmountCents   int64         `json:"amount_cents"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type PaymentEventType string

const (
	EventWebhookReceived  PaymentEventType = "webhook_received"
	EventPaymentSucceeded PaymentEventType = "payment_succeeded"
	EventPaymentFailed    PaymentEventType = "payment_failed"
	EventRefundRequested  PaymentEventType = "refund_requested"
	EventRefundSucceeded  PaymentEventType = "refund_succeeded"
	EventRefundFailed     PaymentEventType = "refund_failed"
)

// PaymentEvent is the append-only audit trail of everything a gateway told
// us about a payment. Rows are never updated or deleted.
type PaymentEvent struct {
	ID        string           `json:"id"`
	PaymentID string           `json:"payment_id"`
	Gateway   Gateway          `json:"gateway"`
	EventType PaymentEventType `json:"event_type"`
	Payload   string           `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
