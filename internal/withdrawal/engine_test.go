package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/repository"
)

type stubAdapter struct {
	gw        domain.Gateway
	payoutErr error
	txID      string

	mu    sync.Mutex
	calls int
}

func (s *stubAdapter) Gateway() domain.Gateway { return s.gw }

func (s *stubAdapter) InitiateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	return nil, domain.ErrUnsupported
}

func (s *stubAdapter) VerifyPayment(ctx context.Context, externalRef string) (domain.PaymentStatus, error) {
	return "", domain.ErrUnsupported
}

func (s *stubAdapter) InitiatePayout(ctx context.Context, destination string, amountCents int64, currency string) (*gateway.PayoutResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.payoutErr != nil {
		return nil, s.payoutErr
	}
	return &gateway.PayoutResult{ProviderTxID: s.txID}, nil
}

func (s *stubAdapter) Refund(ctx context.Context, externalRef string, amountCents int64) error {
	return domain.ErrUnsupported
}

type fixture struct {
	db          *sql.DB
	engine      *Engine
	wallets     *repository.WalletRepo
	withdrawals *repository.WithdrawalRepo
	profiles    *repository.PayoutProfileRepo
	outbox      *repository.OutboxRepo
	paypal      *stubAdapter
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "withdrawal.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	wallets := repository.NewWalletRepo(db)
	withdrawals := repository.NewWithdrawalRepo(db)
	profiles := repository.NewPayoutProfileRepo(db)
	outbox := repository.NewOutboxRepo(db)
	led := ledger.NewService(wallets)
	paypal := &stubAdapter{gw: domain.GatewayPayPal, txID: "BATCH-1"}

	engine := NewEngine(db, withdrawals, wallets, profiles, outbox, led,
		gateway.NewRegistry(paypal), cfg)

	return &fixture{
		db: db, engine: engine, wallets: wallets,
		withdrawals: withdrawals, profiles: profiles, outbox: outbox, paypal: paypal,
	}
}

func (f *fixture) fund(t *testing.T, userID string, cents int64) {
	t.Helper()
	tx, err := f.db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	w, err := f.wallets.GetOrCreateByUserTx(tx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.wallets.CreditTx(tx, w.ID, "USD", cents); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateEarmarksBalance(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 5000)

	req, err := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != domain.WithdrawalPending {
		t.Errorf("status %s, want pending", req.Status)
	}

	w, _ := f.wallets.GetByUser("seller-1")
	if w.AvailableCents != 3000 || w.TotalWithdrawnCents != 2000 {
		t.Errorf("wallet after create: available=%d withdrawn=%d", w.AvailableCents, w.TotalWithdrawnCents)
	}
}

func TestCreateOverBalanceRejected(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 1500)

	_, err := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	// The failed request must leave no trace: no earmark, no row.
	w, _ := f.wallets.GetByUser("seller-1")
	if w.AvailableCents != 1500 || w.TotalWithdrawnCents != 0 {
		t.Errorf("wallet touched by rejected create: %+v", w)
	}
	list, _ := f.engine.ListByUser("seller-1")
	if len(list) != 0 {
		t.Errorf("rejected create left %d rows", len(list))
	}
}

func TestCreateBelowMinimum(t *testing.T) {
	f := newFixture(t, Config{MinAmountCents: 1000})
	f.fund(t, "seller-1", 5000)

	if _, err := f.engine.Create(context.Background(), "seller-1", 500, domain.PayoutPayPal); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("below-minimum create: got %v, want ErrInvalidAmount", err)
	}
}

func TestConcurrentCreatesNeverOverdraw(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 3000)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d creates succeeded for a 3000-cent balance, want 1", succeeded)
	}

	w, _ := f.wallets.GetByUser("seller-1")
	if w.AvailableCents < 0 {
		t.Errorf("wallet overdrawn: %d", w.AvailableCents)
	}
	if w.AvailableCents != w.TotalEarnedCents-w.TotalWithdrawnCents {
		t.Error("ledger invariant broken")
	}
}

func TestDisburseRequiresApproval(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 5000)
	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)

	err := f.engine.Disburse(context.Background(), req.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("disbursing a pending request: got %v, want ErrInvalidTransition", err)
	}
	if f.paypal.calls != 0 {
		t.Error("gateway called for an unapproved request")
	}
}

func TestApproveAndDisburse(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 5000)
	f.profiles.Upsert(&domain.UserPayoutProfile{
		UserID: "seller-1", PayPalEmail: "seller@x.com", PreferredMethod: domain.PayoutPayPal,
	})

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	if _, err := f.engine.Approve(context.Background(), req.ID, "ok"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := f.engine.Disburse(context.Background(), req.ID); err != nil {
		t.Fatalf("Disburse: %v", err)
	}

	got, _ := f.engine.Get(req.ID)
	if got.Status != domain.WithdrawalPaid {
		t.Errorf("status %s, want paid", got.Status)
	}
	if got.TransactionReference != "BATCH-1" {
		t.Errorf("reference %q", got.TransactionReference)
	}
	if got.Destination != "seller@x.com" {
		t.Errorf("destination %q", got.Destination)
	}

	n, _ := f.outbox.CountByType(domain.OutboxWithdrawalPaid)
	if n != 1 {
		t.Errorf("%d withdrawal.paid messages, want 1", n)
	}
}

func TestApproveIsOneShot(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 5000)
	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)

	if _, err := f.engine.Approve(context.Background(), req.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Approve(context.Background(), req.ID, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second approve: got %v, want ErrInvalidTransition", err)
	}
}

func TestFailedDisbursementKeepsEarmark(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)
	f.profiles.Upsert(&domain.UserPayoutProfile{UserID: "seller-1", PayPalEmail: "s@x.com"})
	f.paypal.payoutErr = domain.ErrPayoutRejected

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")

	err := f.engine.Disburse(context.Background(), req.ID)
	if !errors.Is(err, domain.ErrPayoutRejected) {
		t.Fatalf("got %v, want ErrPayoutRejected", err)
	}

	got, _ := f.engine.Get(req.ID)
	if got.Status != domain.WithdrawalFailed {
		t.Errorf("status %s, want failed", got.Status)
	}
	if got.FailureReason == "" {
		t.Error("failure_reason not recorded")
	}

	// Default policy: the earmarked amount stays out of the wallet until
	// an administrator resolves the failure.
	w, _ := f.wallets.GetByUser("seller-1")
	if w.AvailableCents != 0 {
		t.Errorf("balance restored without the policy flag: %d", w.AvailableCents)
	}

	n, _ := f.outbox.CountByType(domain.OutboxWithdrawalFailed)
	if n != 1 {
		t.Errorf("%d withdrawal.failed messages, want 1", n)
	}
}

func TestFailedDisbursementRestoresWithPolicy(t *testing.T) {
	f := newFixture(t, Config{RestoreOnFailure: true})
	f.fund(t, "seller-1", 2000)
	f.profiles.Upsert(&domain.UserPayoutProfile{UserID: "seller-1", PayPalEmail: "s@x.com"})
	f.paypal.payoutErr = domain.ErrPayoutRejected

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")
	f.engine.Disburse(context.Background(), req.ID)

	w, _ := f.wallets.GetByUser("seller-1")
	if w.AvailableCents != 2000 {
		t.Errorf("balance not restored: %d", w.AvailableCents)
	}
}

func TestRetryableFailureLeavesApproved(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)
	f.profiles.Upsert(&domain.UserPayoutProfile{UserID: "seller-1", PayPalEmail: "s@x.com"})
	f.paypal.payoutErr = domain.ErrGatewayUnavailable

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")

	err := f.engine.Disburse(context.Background(), req.ID)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("got %v", err)
	}

	got, _ := f.engine.Get(req.ID)
	if got.Status != domain.WithdrawalApproved {
		t.Errorf("retryable failure moved status to %s, want approved", got.Status)
	}
}

// An approved request stranded by a gateway outage must be payable once
// the gateway recovers; re-running Disburse is the retry path.
func TestDisburseRetriesAfterGatewayRecovers(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)
	f.profiles.Upsert(&domain.UserPayoutProfile{UserID: "seller-1", PayPalEmail: "s@x.com"})
	f.paypal.payoutErr = domain.ErrGatewayUnavailable

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")

	if err := f.engine.Disburse(context.Background(), req.ID); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("first attempt: got %v", err)
	}

	f.paypal.payoutErr = nil
	if err := f.engine.Disburse(context.Background(), req.ID); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}

	got, _ := f.engine.Get(req.ID)
	if got.Status != domain.WithdrawalPaid {
		t.Errorf("status %s after retry, want paid", got.Status)
	}
	if f.paypal.calls != 2 {
		t.Errorf("gateway called %d times, want 2", f.paypal.calls)
	}
}

func TestApproveUnknownWithdrawal(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.engine.Approve(context.Background(), "nope", ""); !errors.Is(err, domain.ErrWithdrawalNotFound) {
		t.Errorf("got %v, want ErrWithdrawalNotFound", err)
	}
}

func TestDisburseUnknownWithdrawal(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.engine.Disburse(context.Background(), "nope"); !errors.Is(err, domain.ErrWithdrawalNotFound) {
		t.Errorf("got %v, want ErrWithdrawalNotFound", err)
	}
}

// The paid/failed updates carry a status guard like every other
// transition, so they refuse a request that is not approved.
func TestMarkPaidRequiresApproved(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)
	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)

	tx, err := f.db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()

	ok, err := f.withdrawals.MarkPaidTx(tx, req.ID, "BATCH-X")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("pending request marked paid")
	}
	ok, err = f.withdrawals.MarkFailedTx(tx, req.ID, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("pending request marked failed")
	}
}

func TestDisburseWithoutProfile(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")

	if err := f.engine.Disburse(context.Background(), req.ID); !errors.Is(err, domain.ErrNoPayoutProfile) {
		t.Errorf("got %v, want ErrNoPayoutProfile", err)
	}
}

func TestDisburseMissingDestination(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, "seller-1", 2000)
	// Profile exists but has no PayPal email.
	f.profiles.Upsert(&domain.UserPayoutProfile{UserID: "seller-1", MpesaPhone: "254700000000"})

	req, _ := f.engine.Create(context.Background(), "seller-1", 2000, domain.PayoutPayPal)
	f.engine.Approve(context.Background(), req.ID, "")

	if err := f.engine.Disburse(context.Background(), req.ID); !errors.Is(err, domain.ErrMissingDestination) {
		t.Errorf("got %v, want ErrMissingDestination", err)
	}
}

func TestSweepOpensRequests(t *testing.T) {
	f := newFixture(t, Config{})
	sweeper := NewSweeper(f.engine, f.wallets, f.withdrawals, f.profiles,
		1000, time.Hour, time.Hour)

	f.fund(t, "seller-1", 5000)
	f.fund(t, "seller-2", 500) // below threshold
	f.fund(t, "seller-3", 3000)
	f.profiles.Upsert(&domain.UserPayoutProfile{
		UserID: "seller-1", PayPalEmail: "a@x.com", PreferredMethod: domain.PayoutPayPal,
	})
	// seller-3 has no payout profile and must be skipped.

	n, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep opened %d requests, want 1", n)
	}

	list, _ := f.engine.ListByUser("seller-1")
	if len(list) != 1 || list[0].AmountCents != 5000 {
		t.Errorf("seller-1 requests: %+v", list)
	}
}

func TestSweepCooldownSkipsActiveSellers(t *testing.T) {
	f := newFixture(t, Config{})
	sweeper := NewSweeper(f.engine, f.wallets, f.withdrawals, f.profiles,
		1000, time.Hour, time.Hour)

	f.fund(t, "seller-1", 5000)
	f.profiles.Upsert(&domain.UserPayoutProfile{
		UserID: "seller-1", PayPalEmail: "a@x.com", PreferredMethod: domain.PayoutPayPal,
	})

	// First sweep earmarks 5000; refund the wallet so the seller is
	// eligible again by balance, then confirm the cooldown still skips.
	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.fund(t, "seller-1", 2000)

	n, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("sweep inside cooldown opened %d requests, want 0", n)
	}
}
