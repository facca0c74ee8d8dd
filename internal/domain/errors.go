package domain

import "errors"

// Error taxonomy shared across the payment core. Retryability is part of
// the contract: webhook handlers translate these into HTTP codes that
// control gateway redelivery.
var (
	// ErrGatewayUnavailable covers network errors, timeouts and 5xx from a
	// provider. Retryable; no local state may change when it is returned.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrInvalidAmount is a permanent provider-side rejection of the
	// amount/currency combination.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPayoutRejected is a permanent provider-side payout rejection.
	ErrPayoutRejected = errors.New("payout rejected")

	// ErrPaymentNotFound: webhook for a payment we do not (yet) know.
	// Logged, never fatal; the local record may lag the gateway.
	ErrPaymentNotFound = errors.New("payment not found")

	ErrOrderNotFound      = errors.New("order not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrSignatureInvalid rejects a webhook before any payload is trusted.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPayoutProfile     = errors.New("no payout profile")
	ErrMissingDestination  = errors.New("missing payout destination")

	// ErrInvalidTransition marks a stale or out-of-order status change.
	// The reconciliation service ignores and logs these.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCurrencyMismatch surfaces a cross-currency ledger operation.
	// Balances are never silently converted.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrUnsupported marks an operation a particular gateway cannot
	// perform (for example refunds on mobile-money rails).
	ErrUnsupported = errors.New("operation not supported by gateway")
)
