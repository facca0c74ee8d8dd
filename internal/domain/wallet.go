package domain

import "time"

// OrgAccountID is the well-known identity of the platform's commission
// account. Exactly one row with this id exists; it is created by migration
// and goes through the same locking discipline as seller wallets.
const OrgAccountID = "org-main"

// Wallet is a per-seller balance account. Invariant:
// AvailableCents == TotalEarnedCents - TotalWithdrawnCents.
// Earmarked withdrawal amounts count as withdrawn from the moment the
// request is created.
type Wallet struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Currency            string     `json:"currency"`
	AvailableCents      int64      `json:"available_cents"`
	TotalEarnedCents    int64      `json:"total_earned_cents"`
	TotalWithdrawnCents int64      `json:"total_withdrawn_cents"`
	LastWithdrawalAt    *time.Time `json:"last_withdrawal_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
