package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Insert(p *domain.Payment) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO payments
		(id, order_id, gateway, external_id, amount_cents, currency, status,
		 customer_email, description, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, nullableString(p.OrderID), string(p.Gateway), p.ExternalID,
		p.AmountCents, p.Currency, string(p.Status), nullableString(p.CustomerEmail),
		nullableString(p.Description), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetByID(id string) (*domain.Payment, error) {
	return r.scanOne(r.db.QueryRow(selectPayment+" WHERE id = ?", id))
}

// GetByExternalRef looks up the payment a gateway event refers to. The
// (gateway, external_id) pair is unique.
func (r *PaymentRepo) GetByExternalRef(gateway domain.Gateway, externalID string) (*domain.Payment, error) {
	return r.scanOne(r.db.QueryRow(
		selectPayment+" WHERE gateway = ? AND external_id = ?",
		string(gateway), externalID,
	))
}

// GetByExternalID resolves a session reference without knowing the
// gateway, for the verification fallback where the client only has the
// provider session id.
func (r *PaymentRepo) GetByExternalID(externalID string) (*domain.Payment, error) {
	return r.scanOne(r.db.QueryRow(
		selectPayment+" WHERE external_id = ? ORDER BY created_at DESC LIMIT 1",
		externalID,
	))
}

func (r *PaymentRepo) GetByOrderID(orderID string) (*domain.Payment, error) {
	return r.scanOne(r.db.QueryRow(
		selectPayment+" WHERE order_id = ? ORDER BY created_at DESC LIMIT 1",
		orderID,
	))
}

// UpdateStatusTx advances the payment status inside the caller's
// transaction. The caller owns transition validation.
func (r *PaymentRepo) UpdateStatusTx(tx *sql.Tx, id string, status domain.PaymentStatus) error {
	_, err := tx.Exec(
		"UPDATE payments SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

const selectPayment = `SELECT id, order_id, gateway, external_id, amount_cents,
	currency, status, customer_email, description, created_at, updated_at
	FROM payments`

func (r *PaymentRepo) scanOne(row *sql.Row) (*domain.Payment, error) {
	var p domain.Payment
	var orderID, email, desc sql.NullString
	var gateway, status, createdAt, updatedAt string

	err := row.Scan(
		&p.ID, &orderID, &gateway, &p.ExternalID, &p.AmountCents,
		&p.Currency, &status, &email, &desc, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.OrderID = orderID.String
	p.Gateway = domain.Gateway(gateway)
	p.Status = domain.PaymentStatus(status)
	p.CustomerEmail = email.String
	p.Description = desc.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
