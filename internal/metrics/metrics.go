package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound provider notifications by gateway and
	// result (accepted, invalid_signature, bad_payload, unknown_payment).
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_webhooks_received_total",
		Help: "Inbound webhook notifications by gateway and result.",
	}, []string{"gateway", "result"})

	PaymentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_completed_total",
		Help: "Payments that reached the completed state.",
	}, []string{"gateway"})

	CreditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paycore_credits_applied_total",
		Help: "Orders credited to seller and organization wallets.",
	})

	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_withdrawals_total",
		Help: "Withdrawal requests by outcome (created, approved, paid, failed, rejected).",
	}, []string{"outcome"})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_outbox_published_total",
		Help: "Outbox messages published to the broker, by event type.",
	}, []string{"event_type"})

	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_refunds_total",
		Help: "Refund attempts by result (succeeded, failed).",
	}, []string{"result"})
)
