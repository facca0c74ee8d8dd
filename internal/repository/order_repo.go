package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Insert(o *domain.Order) error {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	papers, err := json.Marshal(o.PaperIDs)
	if err != nil {
		return fmt.Errorf("marshal paper ids: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO orders
		(id, buyer_id, seller_id, paper_ids, amount_cents, currency, status,
		 credited, seller_share_cents, org_share_cents, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.BuyerID, o.SellerID, string(papers), o.AmountCents, o.Currency,
		string(o.Status), boolToInt(o.Credited), o.SellerShareCents,
		o.OrgShareCents, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) GetByID(id string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRow(selectOrder+" WHERE id = ?", id))
}

// GetByIDTx re-reads the order inside the reconciliation transaction so the
// credited flag check and set are serialized with the status update.
func (r *OrderRepo) GetByIDTx(tx *sql.Tx, id string) (*domain.Order, error) {
	return scanOrder(tx.QueryRow(selectOrder+" WHERE id = ?", id))
}

func (r *OrderRepo) UpdateStatusTx(tx *sql.Tx, id string, status domain.OrderStatus) error {
	_, err := tx.Exec(
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// MarkCreditedTx flips the one-time credited flag and materializes the
// applied split amounts. The WHERE credited = 0 guard makes the flip
// idempotent even if two transactions race past the read.
func (r *OrderRepo) MarkCreditedTx(tx *sql.Tx, id string, sellerShare, orgShare int64) (bool, error) {
	res, err := tx.Exec(
		`UPDATE orders SET credited = 1, seller_share_cents = ?, org_share_cents = ?,
		 updated_at = ? WHERE id = ? AND credited = 0`,
		sellerShare, orgShare, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark credited: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const selectOrder = `SELECT id, buyer_id, seller_id, paper_ids, amount_cents,
	currency, status, credited, seller_share_cents, org_share_cents,
	created_at, updated_at FROM orders`

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var o domain.Order
	var papers, status, createdAt, updatedAt string
	var credited int

	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &papers, &o.AmountCents, &o.Currency,
		&status, &credited, &o.SellerShareCents, &o.OrgShareCents,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal([]byte(papers), &o.PaperIDs); err != nil {
		return nil, fmt.Errorf("unmarshal paper ids: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.Credited = credited == 1
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
