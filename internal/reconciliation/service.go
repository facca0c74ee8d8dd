// Package reconciliation owns the payment state machine. Gateway events
// (webhooks and verification polls) funnel into UpdateStatus, which
// advances Payment, Order, seller Wallet and the organization account in
// one transaction per payment. Redeliveries are no-ops; the credited
// flag on the order makes the revenue split exactly-once.
package reconciliation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/metrics"
	"github.com/gradesworld/paycore/internal/repository"
)

type Service struct {
	db       *sql.DB
	payments *repository.PaymentRepo
	orders   *repository.OrderRepo
	events   *repository.EventRepo
	outbox   *repository.OutboxRepo
	ledger   *ledger.Service

	sellerSharePercent int64
	locks              *keyMutex
}

func NewService(
	db *sql.DB,
	payments *repository.PaymentRepo,
	orders *repository.OrderRepo,
	events *repository.EventRepo,
	outbox *repository.OutboxRepo,
	ledger *ledger.Service,
	sellerSharePercent int64,
) *Service {
	if sellerSharePercent <= 0 || sellerSharePercent > 100 {
		sellerSharePercent = 65
	}
	return &Service{
		db:                 db,
		payments:           payments,
		orders:             orders,
		events:             events,
		outbox:             outbox,
		ledger:             ledger,
		sellerSharePercent: sellerSharePercent,
		locks:              newKeyMutex(),
	}
}

// canTransition encodes the webhook-reachable part of the payment state
// machine. Refunds are excluded on purpose: only the refund service may
// move completed to refunded.
func canTransition(from, to domain.PaymentStatus) bool {
	switch from {
	case domain.PaymentCreated:
		return to == domain.PaymentPending || to == domain.PaymentCompleted || to == domain.PaymentFailed
	case domain.PaymentPending:
		return to == domain.PaymentCompleted || to == domain.PaymentFailed
	default:
		return false
	}
}

// UpdateStatus applies a gateway-reported status to the payment
// identified by (gateway, externalRef). Same-status redelivery returns
// nil without touching anything. A stale or out-of-order report returns
// domain.ErrInvalidTransition; an unknown payment returns
// domain.ErrPaymentNotFound. Both are non-fatal for callers.
func (s *Service) UpdateStatus(ctx context.Context, gateway domain.Gateway, externalRef string, newStatus domain.PaymentStatus) error {
	key := string(gateway) + ":" + externalRef
	s.locks.lock(key)
	defer s.locks.unlock(key)

	payment, err := s.payments.GetByExternalRef(gateway, externalRef)
	if err != nil {
		return err
	}

	if payment.Status == newStatus {
		log.Printf("[reconciliation] %s/%s already %s, redelivery ignored", gateway, externalRef, newStatus)
		return nil
	}
	if !canTransition(payment.Status, newStatus) {
		log.Printf("[reconciliation] ignoring stale transition %s -> %s for %s/%s",
			payment.Status, newStatus, gateway, externalRef)
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, payment.Status, newStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.UpdateStatusTx(tx, payment.ID, newStatus); err != nil {
		return err
	}

	credited := false
	switch newStatus {
	case domain.PaymentCompleted:
		credited, err = s.settleOrder(tx, payment)
		if err != nil {
			return err
		}
	case domain.PaymentFailed:
		if err := s.failOrder(tx, payment); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Audit events ride outside the transaction; the event log is
	// append-only and a duplicate row on crash-retry is acceptable.
	switch newStatus {
	case domain.PaymentCompleted:
		s.recordEvent(payment, domain.EventPaymentSucceeded)
		metrics.PaymentsCompleted.WithLabelValues(string(gateway)).Inc()
		if credited {
			metrics.CreditsApplied.Inc()
		}
	case domain.PaymentFailed:
		s.recordEvent(payment, domain.EventPaymentFailed)
	}

	log.Printf("[reconciliation] %s/%s: %s -> %s (credited=%t)",
		gateway, externalRef, payment.Status, newStatus, credited)
	return nil
}

// settleOrder completes the order linked to the payment and applies the
// one-time revenue split. Returns whether this call performed the credit.
func (s *Service) settleOrder(tx *sql.Tx, payment *domain.Payment) (bool, error) {
	if payment.OrderID == "" {
		return false, nil
	}

	order, err := s.orders.GetByIDTx(tx, payment.OrderID)
	if err != nil {
		return false, err
	}

	if order.Status != domain.OrderCompleted {
		if err := s.orders.UpdateStatusTx(tx, order.ID, domain.OrderCompleted); err != nil {
			return false, err
		}
	}

	sellerShare, orgShare := ledger.Split(order.AmountCents, s.sellerSharePercent)
	credited, err := s.orders.MarkCreditedTx(tx, order.ID, sellerShare, orgShare)
	if err != nil {
		return false, err
	}
	if !credited {
		// Another delivery already settled this order.
		return false, nil
	}

	if err := s.ledger.CreditSellerTx(tx, order.SellerID, order.Currency, sellerShare); err != nil {
		return false, err
	}
	if err := s.ledger.CreditOrgTx(tx, order.Currency, orgShare); err != nil {
		return false, err
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":           order.ID,
		"buyer_id":           order.BuyerID,
		"seller_id":          order.SellerID,
		"paper_ids":          order.PaperIDs,
		"amount_cents":       order.AmountCents,
		"seller_share_cents": sellerShare,
		"org_share_cents":    orgShare,
		"currency":           order.Currency,
		"gateway":            payment.Gateway,
	})
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.outbox.InsertTx(tx, domain.OutboxOrderCompleted, order.ID, payload); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) failOrder(tx *sql.Tx, payment *domain.Payment) error {
	if payment.OrderID == "" {
		return nil
	}
	order, err := s.orders.GetByIDTx(tx, payment.OrderID)
	if err != nil {
		return err
	}
	// Only a still-pending order fails with its payment; a completed
	// order stays completed (a late failure report is stale).
	if order.Status != domain.OrderPending {
		return nil
	}
	return s.orders.UpdateStatusTx(tx, order.ID, domain.OrderFailed)
}

// MarkRefunded moves a completed payment to refunded. Reserved for the
// refund service; webhook-driven refund events never reach this.
func (s *Service) MarkRefunded(ctx context.Context, paymentID string) error {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return err
	}

	key := string(payment.Gateway) + ":" + payment.ExternalID
	s.locks.lock(key)
	defer s.locks.unlock(key)

	// Re-read under the lock; a concurrent update may have advanced it.
	payment, err = s.payments.GetByID(paymentID)
	if err != nil {
		return err
	}
	if payment.Status != domain.PaymentCompleted {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, payment.Status, domain.PaymentRefunded)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.UpdateStatusTx(tx, payment.ID, domain.PaymentRefunded); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) recordEvent(payment *domain.Payment, eventType domain.PaymentEventType) {
	if _, err := s.events.Record(payment.ID, payment.Gateway, eventType, nil); err != nil {
		log.Printf("[reconciliation] record %s for payment %s: %v", eventType, payment.ID, err)
	}
}
