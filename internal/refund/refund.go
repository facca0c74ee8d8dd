// Package refund reverses completed payments at the provider. Refunds
// never claw back seller credits; the money movement is between the
// organization and the buyer, and the audit trail lives in the payment
// event log.
package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/metrics"
	"github.com/gradesworld/paycore/internal/reconciliation"
	"github.com/gradesworld/paycore/internal/repository"
)

type Service struct {
	payments *repository.PaymentRepo
	events   *repository.EventRepo
	gateways *gateway.Registry
	recon    *reconciliation.Service
	timeout  time.Duration
}

func NewService(
	payments *repository.PaymentRepo,
	events *repository.EventRepo,
	gateways *gateway.Registry,
	recon *reconciliation.Service,
	timeout time.Duration,
) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{payments: payments, events: events, gateways: gateways, recon: recon, timeout: timeout}
}

// Refund pushes a full refund through the payment's gateway and moves
// the payment to refunded. Every attempt leaves a refund_requested
// event; the outcome adds refund_succeeded or refund_failed.
func (s *Service) Refund(ctx context.Context, paymentID string) error {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return err
	}
	if payment.Status != domain.PaymentCompleted {
		return fmt.Errorf("%w: cannot refund a %s payment", domain.ErrInvalidTransition, payment.Status)
	}

	adapter, err := s.gateways.Select(payment.Gateway)
	if err != nil {
		return err
	}

	s.record(payment, domain.EventRefundRequested, nil)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := adapter.Refund(callCtx, payment.ExternalID, payment.AmountCents); err != nil {
		payload, _ := json.Marshal(map[string]string{"reason": err.Error()})
		s.record(payment, domain.EventRefundFailed, payload)
		metrics.RefundsProcessed.WithLabelValues("failed").Inc()
		log.Printf("[refund] payment %s on %s: %v", payment.ID, payment.Gateway, err)
		return err
	}

	s.record(payment, domain.EventRefundSucceeded, nil)
	if err := s.recon.MarkRefunded(ctx, payment.ID); err != nil {
		return err
	}

	metrics.RefundsProcessed.WithLabelValues("succeeded").Inc()
	log.Printf("[refund] payment %s refunded (%d %s)", payment.ID, payment.AmountCents, payment.Currency)
	return nil
}

func (s *Service) record(payment *domain.Payment, eventType domain.PaymentEventType, payload []byte) {
	if _, err := s.events.Record(payment.ID, payment.Gateway, eventType, payload); err != nil {
		log.Printf("[refund] record %s for payment %s: %v", eventType, payment.ID, err)
	}
}
