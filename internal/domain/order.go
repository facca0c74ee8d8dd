package domain

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// Order identifies a purchase attempt. It is created by the checkout
// orchestrator (or the storefront via the orders API) and mutated only by
// the reconciliation service once payment has started. SellerID is the
// author of the purchased papers; one seller per order.
type Order struct {
	ID          string      `json:"id"`
	BuyerID     string      `json:"buyer_id"`
	SellerID    string      `json:"seller_id"`
	PaperIDs    []string    `json:"paper_ids"`
	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	Credited    bool        `json:"credited"`

	// Materialized at credit time so a later change to the configured
	// revenue split never rewrites history.
	SellerShareCents int64 `json:"seller_share_cents,omitempty"`
	OrgShareCents    int64 `json:"org_share_cents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
