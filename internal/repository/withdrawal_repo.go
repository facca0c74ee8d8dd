package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

type WithdrawalRepo struct {
	db *sql.DB
}

func NewWithdrawalRepo(db *sql.DB) *WithdrawalRepo {
	return &WithdrawalRepo{db: db}
}

// InsertTx creates the request inside the same transaction that earmarks
// the wallet balance, so the debit and the request appear or disappear
// together.
func (r *WithdrawalRepo) InsertTx(tx *sql.Tx, w *domain.WithdrawalRequest) error {
	now := time.Now().UTC()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = domain.WithdrawalPending
	}
	w.CreatedAt = now

	_, err := tx.Exec(
		`INSERT INTO withdrawal_requests
		(id, user_id, amount_cents, method, destination, transaction_reference,
		 status, admin_note, failure_reason, created_at, approved_at, paid_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.UserID, w.AmountCents, string(w.Method),
		nullableString(w.Destination), nullableString(w.TransactionReference),
		string(w.Status), nullableString(w.AdminNote),
		nullableString(w.FailureReason), now.Format(time.RFC3339), nil, nil,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (r *WithdrawalRepo) GetByID(id string) (*domain.WithdrawalRequest, error) {
	return scanWithdrawal(r.db.QueryRow(selectWithdrawal+" WHERE id = ?", id))
}

func (r *WithdrawalRepo) ListByUser(userID string) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.Query(
		selectWithdrawal+" WHERE user_id = ? ORDER BY created_at DESC", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawalRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// MarkApproved performs the pending -> approved transition. Zero rows
// affected means the request was not pending.
func (r *WithdrawalRepo) MarkApproved(id, adminNote string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.db.Exec(
		`UPDATE withdrawal_requests SET status = ?, admin_note = ?, approved_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.WithdrawalApproved), adminNote, now, id,
		string(domain.WithdrawalPending),
	)
	if err != nil {
		return false, fmt.Errorf("approve withdrawal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkPaidTx performs approved -> paid. Zero rows affected means the
// request was not approved when the update ran.
func (r *WithdrawalRepo) MarkPaidTx(tx *sql.Tx, id, transactionRef string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		`UPDATE withdrawal_requests SET status = ?, transaction_reference = ?, paid_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.WithdrawalPaid), transactionRef, now, id,
		string(domain.WithdrawalApproved),
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailedTx performs approved -> failed, guarded the same way as
// MarkPaidTx.
func (r *WithdrawalRepo) MarkFailedTx(tx *sql.Tx, id, reason string) (bool, error) {
	res, err := tx.Exec(
		`UPDATE withdrawal_requests SET status = ?, failure_reason = ?
		WHERE id = ? AND status = ?`,
		string(domain.WithdrawalFailed), reason, id,
		string(domain.WithdrawalApproved),
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *WithdrawalRepo) UpdateDestination(id, destination string) error {
	_, err := r.db.Exec(
		"UPDATE withdrawal_requests SET destination = ? WHERE id = ?",
		destination, id,
	)
	return err
}

// HasActiveSince reports whether the user has a pending or approved
// request created after the cutoff. The sweep uses this as its cooldown
// guard against duplicate concurrent requests for the same balance.
func (r *WithdrawalRepo) HasActiveSince(userID string, cutoff time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM withdrawal_requests
		WHERE user_id = ? AND created_at >= ? AND status IN (?, ?)`,
		userID, cutoff.UTC().Format(time.RFC3339),
		string(domain.WithdrawalPending), string(domain.WithdrawalApproved),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count active withdrawals: %w", err)
	}
	return count > 0, nil
}

const selectWithdrawal = `SELECT id, user_id, amount_cents, method, destination,
	transaction_reference, status, admin_note, failure_reason, created_at,
	approved_at, paid_at FROM withdrawal_requests`

func scanWithdrawal(row *sql.Row) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var method, status, createdAt string
	var dest, ref, note, reason, approvedAt, paidAt sql.NullString

	err := row.Scan(
		&w.ID, &w.UserID, &w.AmountCents, &method, &dest, &ref,
		&status, &note, &reason, &createdAt, &approvedAt, &paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	fillWithdrawal(&w, method, status, dest, ref, note, reason, createdAt, approvedAt, paidAt)
	return &w, nil
}

func scanWithdrawalRows(rows *sql.Rows) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var method, status, createdAt string
	var dest, ref, note, reason, approvedAt, paidAt sql.NullString

	err := rows.Scan(
		&w.ID, &w.UserID, &w.AmountCents, &method, &dest, &ref,
		&status, &note, &reason, &createdAt, &approvedAt, &paidAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	fillWithdrawal(&w, method, status, dest, ref, note, reason, createdAt, approvedAt, paidAt)
	return &w, nil
}

func fillWithdrawal(w *domain.WithdrawalRequest, method, status string,
	dest, ref, note, reason sql.NullString, createdAt string, approvedAt, paidAt sql.NullString) {
	w.Method = domain.PayoutMethod(method)
	w.Status = domain.WithdrawalStatus(status)
	w.Destination = dest.String
	w.TransactionReference = ref.String
	w.AdminNote = note.String
	w.FailureReason = reason.String
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		w.ApprovedAt = &t
	}
	if paidAt.Valid {
		t, _ := time.Parse(time.RFC3339, paidAt.String)
		w.PaidAt = &t
	}
}
