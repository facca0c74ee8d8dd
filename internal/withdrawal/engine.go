// Package withdrawal moves seller earnings out of the platform. A
// request earmarks the wallet balance immediately; disbursement happens
// later, after an administrator approves, and talks to the payout
// gateway off the request path.
package withdrawal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gradesworld/paycore/internal/currency"
	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/metrics"
	"github.com/gradesworld/paycore/internal/repository"
)

type Engine struct {
	db          *sql.DB
	withdrawals *repository.WithdrawalRepo
	wallets     *repository.WalletRepo
	profiles    *repository.PayoutProfileRepo
	outbox      *repository.OutboxRepo
	ledger      *ledger.Service
	gateways    *gateway.Registry

	minAmountCents int64
	// restoreOnFailure returns the earmarked amount to the wallet when a
	// disbursement permanently fails. Off by default: a failed payout is
	// investigated by an administrator before money moves back.
	restoreOnFailure bool
	disburseTimeout  time.Duration
}

type Config struct {
	MinAmountCents   int64
	RestoreOnFailure bool
	DisburseTimeout  time.Duration
}

func NewEngine(
	db *sql.DB,
	withdrawals *repository.WithdrawalRepo,
	wallets *repository.WalletRepo,
	profiles *repository.PayoutProfileRepo,
	outbox *repository.OutboxRepo,
	led *ledger.Service,
	gateways *gateway.Registry,
	cfg Config,
) *Engine {
	if cfg.MinAmountCents <= 0 {
		cfg.MinAmountCents = 1000
	}
	if cfg.DisburseTimeout <= 0 {
		cfg.DisburseTimeout = 30 * time.Second
	}
	return &Engine{
		db:               db,
		withdrawals:      withdrawals,
		wallets:          wallets,
		profiles:         profiles,
		outbox:           outbox,
		ledger:           led,
		gateways:         gateways,
		minAmountCents:   cfg.MinAmountCents,
		restoreOnFailure: cfg.RestoreOnFailure,
		disburseTimeout:  cfg.DisburseTimeout,
	}
}

// Create opens a withdrawal request and earmarks the amount in the same
// transaction. The balance-guarded debit is what makes two concurrent
// requests for the same balance safe: one of them gets
// ErrInsufficientBalance.
func (e *Engine) Create(ctx context.Context, userID string, amountCents int64, method domain.PayoutMethod) (*domain.WithdrawalRequest, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payout method %q", domain.ErrInvalidAmount, method)
	}
	if amountCents < e.minAmountCents {
		return nil, fmt.Errorf("%w: minimum withdrawal is %d cents", domain.ErrInvalidAmount, e.minAmountCents)
	}

	wallet, err := e.wallets.GetByUser(userID)
	if err != nil {
		return nil, err
	}

	req := &domain.WithdrawalRequest{
		UserID:      userID,
		AmountCents: amountCents,
		Method:      method,
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := e.ledger.EarmarkTx(tx, wallet.ID, amountCents); err != nil {
		return nil, err
	}
	if err := e.withdrawals.InsertTx(tx, req); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.Withdrawals.WithLabelValues("created").Inc()
	log.Printf("[withdrawal] created %s: user=%s amount=%d method=%s", req.ID, userID, amountCents, method)
	return req, nil
}

// Approve performs the pending -> approved transition. Returns the
// request so the caller can hand it to Disburse.
func (e *Engine) Approve(ctx context.Context, id, adminNote string) (*domain.WithdrawalRequest, error) {
	if _, err := e.withdrawals.GetByID(id); err != nil {
		return nil, err
	}
	ok, err := e.withdrawals.MarkApproved(id, adminNote)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %s is not pending", domain.ErrInvalidTransition, id)
	}
	metrics.Withdrawals.WithLabelValues("approved").Inc()
	return e.withdrawals.GetByID(id)
}

func payoutGateway(method domain.PayoutMethod) domain.Gateway {
	switch method {
	case domain.PayoutPayPal:
		return domain.GatewayPayPal
	case domain.PayoutStripe:
		return domain.GatewayStripe
	case domain.PayoutMpesa:
		return domain.GatewayMpesa
	}
	return ""
}

// Disburse pushes an approved request through the payout gateway. The
// provider call runs under its own timeout and outside any database
// transaction. A permanent rejection marks the request failed (terminal);
// a retryable gateway error leaves it approved for a later attempt.
func (e *Engine) Disburse(ctx context.Context, id string) error {
	req, err := e.withdrawals.GetByID(id)
	if err != nil {
		return err
	}
	if req.Status != domain.WithdrawalApproved {
		return fmt.Errorf("%w: cannot disburse a %s withdrawal", domain.ErrInvalidTransition, req.Status)
	}

	dest := req.Destination
	if dest == "" {
		profile, err := e.profiles.Get(req.UserID)
		if err != nil {
			return err
		}
		dest = profile.DestinationFor(req.Method)
		if dest == "" {
			return fmt.Errorf("%w: profile has no %s destination", domain.ErrMissingDestination, req.Method)
		}
		if err := e.withdrawals.UpdateDestination(req.ID, dest); err != nil {
			return err
		}
	}

	adapter, err := e.gateways.Select(payoutGateway(req.Method))
	if err != nil {
		return err
	}

	amount := req.AmountCents
	payoutCurrency := "USD"
	if req.Method == domain.PayoutMpesa {
		// Wallets hold USD; M-Pesa disburses shillings.
		payoutCurrency = "KES"
		amount, err = currency.ConvertCents(amount, "USD", "KES")
		if err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.disburseTimeout)
	defer cancel()

	result, payErr := adapter.InitiatePayout(callCtx, dest, amount, payoutCurrency)
	if payErr != nil {
		if errors.Is(payErr, domain.ErrGatewayUnavailable) {
			log.Printf("[withdrawal] %s: gateway unavailable, will retry: %v", req.ID, payErr)
			return payErr
		}
		return e.markFailed(ctx, req, payErr)
	}
	return e.markPaid(ctx, req, result.ProviderTxID)
}

func (e *Engine) markPaid(ctx context.Context, req *domain.WithdrawalRequest, providerTxID string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ok, err := e.withdrawals.MarkPaidTx(tx, req.ID, providerTxID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: withdrawal %s is no longer approved", domain.ErrInvalidTransition, req.ID)
	}
	payload, _ := json.Marshal(map[string]any{
		"withdrawal_id":         req.ID,
		"user_id":               req.UserID,
		"amount_cents":          req.AmountCents,
		"method":                req.Method,
		"transaction_reference": providerTxID,
	})
	if err := e.outbox.InsertTx(tx, domain.OutboxWithdrawalPaid, req.ID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	metrics.Withdrawals.WithLabelValues("paid").Inc()
	log.Printf("[withdrawal] %s paid: ref=%s", req.ID, providerTxID)
	return nil
}

func (e *Engine) markFailed(ctx context.Context, req *domain.WithdrawalRequest, cause error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ok, err := e.withdrawals.MarkFailedTx(tx, req.ID, cause.Error())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: withdrawal %s is no longer approved", domain.ErrInvalidTransition, req.ID)
	}
	if e.restoreOnFailure {
		wallet, err := e.wallets.GetByUser(req.UserID)
		if err != nil {
			return err
		}
		if err := e.ledger.RestoreTx(tx, wallet.ID, req.AmountCents); err != nil {
			return err
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"withdrawal_id": req.ID,
		"user_id":       req.UserID,
		"amount_cents":  req.AmountCents,
		"reason":        cause.Error(),
	})
	if err := e.outbox.InsertTx(tx, domain.OutboxWithdrawalFailed, req.ID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	metrics.Withdrawals.WithLabelValues("failed").Inc()
	log.Printf("[withdrawal] %s failed: %v (restore=%t)", req.ID, cause, e.restoreOnFailure)
	return cause
}

// ListByUser returns the requester's withdrawal history.
func (e *Engine) ListByUser(userID string) ([]domain.WithdrawalRequest, error) {
	return e.withdrawals.ListByUser(userID)
}

// Get returns one request by id.
func (e *Engine) Get(id string) (*domain.WithdrawalRequest, error) {
	return e.withdrawals.GetByID(id)
}
