// Package ledger owns wallet balance movement. Every mutation goes
// through a balance-guarded UPDATE inside the caller's transaction, so
// balances never go negative and the invariant
// available == total_earned - total_withdrawn holds at all times.
package ledger

import (
	"database/sql"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/repository"
)

type Service struct {
	wallets *repository.WalletRepo
}

func NewService(wallets *repository.WalletRepo) *Service {
	return &Service{wallets: wallets}
}

// Split divides an order amount between seller and organization. The
// seller share is floor(amount * percent / 100); the organization takes
// the remainder, so the two always sum to the full amount.
func Split(amountCents int64, sellerPercent int64) (seller, org int64) {
	seller = amountCents * sellerPercent / 100
	return seller, amountCents - seller
}

// CreditSellerTx adds earnings to the seller's wallet, creating the
// wallet on first earning.
func (s *Service) CreditSellerTx(tx *sql.Tx, sellerID, currency string, amountCents int64) error {
	w, err := s.wallets.GetOrCreateByUserTx(tx, sellerID)
	if err != nil {
		return err
	}
	return s.wallets.CreditTx(tx, w.ID, currency, amountCents)
}

// CreditOrgTx adds the organization share to the org account.
func (s *Service) CreditOrgTx(tx *sql.Tx, currency string, amountCents int64) error {
	return s.wallets.CreditTx(tx, domain.OrgAccountID, currency, amountCents)
}

// EarmarkTx debits the available balance for a withdrawal request.
// Returns domain.ErrInsufficientBalance when the balance cannot cover it.
func (s *Service) EarmarkTx(tx *sql.Tx, walletID string, amountCents int64) error {
	return s.wallets.DebitEarmarkTx(tx, walletID, amountCents)
}

// RestoreTx reverses an earmark after a failed disbursement.
func (s *Service) RestoreTx(tx *sql.Tx, walletID string, amountCents int64) error {
	return s.wallets.RestoreTx(tx, walletID, amountCents)
}

// BalanceOf returns the user's wallet, creating it on first read.
func (s *Service) BalanceOf(userID string) (*domain.Wallet, error) {
	return s.wallets.GetOrCreateByUser(userID)
}
