package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// GetOrCreateByUser returns the user's wallet, creating an empty USD wallet
// on first touch (sellers get a wallet the first time they earn).
func (r *WalletRepo) GetOrCreateByUser(userID string) (*domain.Wallet, error) {
	w, err := r.GetByUser(userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(
		`INSERT OR IGNORE INTO wallets (id, user_id, currency, updated_at)
		VALUES (?,?,?,?)`,
		uuid.NewString(), userID, "USD", now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return r.GetByUser(userID)
}

// GetOrCreateByUserTx is the transaction-scoped variant used while
// crediting earnings; the insert must ride the same connection as the
// surrounding write transaction or it would block on its own lock.
func (r *WalletRepo) GetOrCreateByUserTx(tx *sql.Tx, userID string) (*domain.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(selectWallet+" WHERE user_id = ?", userID))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	_, err = tx.Exec(
		`INSERT OR IGNORE INTO wallets (id, user_id, currency, updated_at)
		VALUES (?,?,?,?)`,
		uuid.NewString(), userID, "USD", time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return scanWallet(tx.QueryRow(selectWallet+" WHERE user_id = ?", userID))
}

func (r *WalletRepo) GetByUser(userID string) (*domain.Wallet, error) {
	return scanWallet(r.db.QueryRow(selectWallet+" WHERE user_id = ?", userID))
}

func (r *WalletRepo) GetByID(id string) (*domain.Wallet, error) {
	return scanWallet(r.db.QueryRow(selectWallet+" WHERE id = ?", id))
}

// CreditTx adds earnings to a wallet inside the caller's transaction.
// Available balance and total earned move together so the ledger invariant
// holds. The currency guard surfaces configuration errors; nothing is
// converted silently.
func (r *WalletRepo) CreditTx(tx *sql.Tx, walletID, currency string, amountCents int64) error {
	var walletCurrency string
	err := tx.QueryRow("SELECT currency FROM wallets WHERE id = ?", walletID).Scan(&walletCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrWalletNotFound
	}
	if err != nil {
		return fmt.Errorf("read wallet currency: %w", err)
	}
	if currency != walletCurrency {
		return fmt.Errorf("%w: wallet %s holds %s, credit is %s",
			domain.ErrCurrencyMismatch, walletID, walletCurrency, currency)
	}

	_, err = tx.Exec(
		`UPDATE wallets SET
			available_cents = available_cents + ?,
			total_earned_cents = total_earned_cents + ?,
			updated_at = ?
		WHERE id = ?`,
		amountCents, amountCents, time.Now().UTC().Format(time.RFC3339), walletID,
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// DebitEarmarkTx removes an amount from the available balance and counts it
// as withdrawn, in one guarded statement. Zero rows affected means the
// balance was insufficient at execution time; the guard is what keeps two
// concurrent withdrawal requests from jointly over-debiting a wallet.
func (r *WalletRepo) DebitEarmarkTx(tx *sql.Tx, walletID string, amountCents int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		`UPDATE wallets SET
			available_cents = available_cents - ?,
			total_withdrawn_cents = total_withdrawn_cents + ?,
			last_withdrawal_at = ?,
			updated_at = ?
		WHERE id = ? AND available_cents >= ?`,
		amountCents, amountCents, now, now, walletID, amountCents,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// RestoreTx reverses an earmark after a failed disbursement. Only used when
// the restore-on-failure policy is enabled.
func (r *WalletRepo) RestoreTx(tx *sql.Tx, walletID string, amountCents int64) error {
	_, err := tx.Exec(
		`UPDATE wallets SET
			available_cents = available_cents + ?,
			total_withdrawn_cents = total_withdrawn_cents - ?,
			updated_at = ?
		WHERE id = ?`,
		amountCents, amountCents, time.Now().UTC().Format(time.RFC3339), walletID,
	)
	if err != nil {
		return fmt.Errorf("restore wallet: %w", err)
	}
	return nil
}

// ListEligibleForSweep returns seller wallets holding at least minCents.
// The org account is excluded; its balance is not swept.
func (r *WalletRepo) ListEligibleForSweep(minCents int64) ([]domain.Wallet, error) {
	rows, err := r.db.Query(
		selectWallet+" WHERE available_cents >= ? AND id != ? ORDER BY user_id",
		minCents, domain.OrgAccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query eligible wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWalletRows(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

const selectWallet = `SELECT id, user_id, currency, available_cents,
	total_earned_cents, total_withdrawn_cents, last_withdrawal_at, updated_at
	FROM wallets`

func scanWallet(row *sql.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var lastWithdrawal sql.NullString
	var updatedAt string

	err := row.Scan(
		&w.ID, &w.UserID, &w.Currency, &w.AvailableCents,
		&w.TotalEarnedCents, &w.TotalWithdrawnCents, &lastWithdrawal, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	if lastWithdrawal.Valid {
		t, _ := time.Parse(time.RFC3339, lastWithdrawal.String)
		w.LastWithdrawalAt = &t
	}
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func scanWalletRows(rows *sql.Rows) (*domain.Wallet, error) {
	var w domain.Wallet
	var lastWithdrawal sql.NullString
	var updatedAt string

	err := rows.Scan(
		&w.ID, &w.UserID, &w.Currency, &w.AvailableCents,
		&w.TotalEarnedCents, &w.TotalWithdrawnCents, &lastWithdrawal, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	if lastWithdrawal.Valid {
		t, _ := time.Parse(time.RFC3339, lastWithdrawal.String)
		w.LastWithdrawalAt = &t
	}
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}
