package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/gradesworld/paycore/internal/domain"
)

type PayoutProfileRepo struct {
	db *sql.DB
}

func NewPayoutProfileRepo(db *sql.DB) *PayoutProfileRepo {
	return &PayoutProfileRepo{db: db}
}

func (r *PayoutProfileRepo) Get(userID string) (*domain.UserPayoutProfile, error) {
	var p domain.UserPayoutProfile
	var paypal, stripeAcct, phone, preferred sql.NullString

	err := r.db.QueryRow(
		`SELECT user_id, paypal_email, stripe_account_id, mpesa_phone, preferred_method
		FROM payout_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &paypal, &stripeAcct, &phone, &preferred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoPayoutProfile
	}
	if err != nil {
		return nil, fmt.Errorf("scan payout profile: %w", err)
	}

	p.PayPalEmail = paypal.String
	p.StripeAccountID = stripeAcct.String
	p.MpesaPhone = phone.String
	p.PreferredMethod = domain.PayoutMethod(preferred.String)
	return &p, nil
}

func (r *PayoutProfileRepo) Upsert(p *domain.UserPayoutProfile) error {
	_, err := r.db.Exec(
		`INSERT INTO payout_profiles
		(user_id, paypal_email, stripe_account_id, mpesa_phone, preferred_method)
		VALUES (?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			paypal_email = excluded.paypal_email,
			stripe_account_id = excluded.stripe_account_id,
			mpesa_phone = excluded.mpesa_phone,
			preferred_method = excluded.preferred_method`,
		p.UserID, nullableString(p.PayPalEmail), nullableString(p.StripeAccountID),
		nullableString(p.MpesaPhone), nullableString(string(p.PreferredMethod)),
	)
	if err != nil {
		return fmt.Errorf("upsert payout profile: %w", err)
	}
	return nil
}
