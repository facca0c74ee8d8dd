package withdrawal

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/repository"
)

// Sweeper periodically opens withdrawal requests for sellers whose
// balance has reached the sweep threshold, so earnings do not sit on the
// platform indefinitely. Sellers with a recent pending or approved
// request are skipped; the cooldown prevents the sweep from stacking
// requests against the same balance.
type Sweeper struct {
	engine      *Engine
	wallets     *repository.WalletRepo
	withdrawals *repository.WithdrawalRepo
	profiles    *repository.PayoutProfileRepo

	minCents int64
	cooldown time.Duration
	interval time.Duration
}

func NewSweeper(
	engine *Engine,
	wallets *repository.WalletRepo,
	withdrawals *repository.WithdrawalRepo,
	profiles *repository.PayoutProfileRepo,
	minCents int64,
	cooldown, interval time.Duration,
) *Sweeper {
	if minCents <= 0 {
		minCents = 1000
	}
	if cooldown <= 0 {
		cooldown = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	return &Sweeper{
		engine:      engine,
		wallets:     wallets,
		withdrawals: withdrawals,
		profiles:    profiles,
		minCents:    minCents,
		cooldown:    cooldown,
		interval:    interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[sweep] run failed: %v", err)
				continue
			}
			log.Printf("[sweep] opened %d withdrawal requests", n)
		}
	}
}

// SweepOnce walks eligible wallets and opens one request per seller.
// Exported for tests and the admin trigger.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	eligible, err := s.wallets.ListEligibleForSweep(s.minCents)
	if err != nil {
		return 0, err
	}

	created := 0
	cutoff := time.Now().Add(-s.cooldown)
	for _, w := range eligible {
		active, err := s.withdrawals.HasActiveSince(w.UserID, cutoff)
		if err != nil {
			log.Printf("[sweep] cooldown check for %s: %v", w.UserID, err)
			continue
		}
		if active {
			continue
		}

		profile, err := s.profiles.Get(w.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNoPayoutProfile) {
				log.Printf("[sweep] skipping %s: no payout profile", w.UserID)
				continue
			}
			return created, err
		}
		if !profile.PreferredMethod.Valid() {
			log.Printf("[sweep] skipping %s: no preferred payout method", w.UserID)
			continue
		}

		if _, err := s.engine.Create(ctx, w.UserID, w.AvailableCents, profile.PreferredMethod); err != nil {
			log.Printf("[sweep] create for %s: %v", w.UserID, err)
			continue
		}
		created++
	}
	return created, nil
}
