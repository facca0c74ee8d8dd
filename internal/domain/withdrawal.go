package domain

import "time"

type PayoutMethod string

const (
	PayoutPayPal PayoutMethod = "paypal"
	PayoutStripe PayoutMethod = "stripe"
	PayoutMpesa  PayoutMethod = "mpesa"
)

func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutPayPal, PayoutStripe, PayoutMpesa:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalPaid     WithdrawalStatus = "paid"
	WithdrawalFailed   WithdrawalStatus = "failed"
)

// WithdrawalRequest is one payout attempt by a seller. The requested amount
// is debited from the wallet when the request is created (earmarked), before
// disbursement is attempted. Failed requests are terminal; an administrator
// re-approves or re-submits manually.
type WithdrawalRequest struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"user_id"`
	AmountCents          int64            `json:"amount_cents"`
	Method               PayoutMethod     `json:"method"`
	Destination          string           `json:"destination,omitempty"`
	TransactionReference string           `json:"transaction_reference,omitempty"`
	Status               WithdrawalStatus `json:"status"`
	AdminNote            string           `json:"admin_note,omitempty"`
	FailureReason        string           `json:"failure_reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	ApprovedAt           *time.Time       `json:"approved_at,omitempty"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
}

// UserPayoutProfile holds per-seller destination identifiers per payout
// method. Read-only input to the withdrawal engine.
type UserPayoutProfile struct {
	UserID          string       `json:"user_id"`
	PayPalEmail     string       `json:"paypal_email,omitempty"`
	StripeAccountID string       `json:"stripe_account_id,omitempty"`
	MpesaPhone      string       `json:"mpesa_phone,omitempty"`
	PreferredMethod PayoutMethod `json:"preferred_method,omitempty"`
}

// DestinationFor returns the identifier for the given method, or "" when
// the profile has none configured.
func (p *UserPayoutProfile) DestinationFor(method PayoutMethod) string {
	switch method {
	case PayoutPayPal:
		return p.PayPalEmail
	case PayoutStripe:
		return p.StripeAccountID
	case PayoutMpesa:
		return p.MpesaPhone
	}
	return ""
}
