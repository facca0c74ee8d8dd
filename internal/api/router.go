package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gradesworld/paycore/internal/checkout"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/refund"
	"github.com/gradesworld/paycore/internal/repository"
	"github.com/gradesworld/paycore/internal/withdrawal"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	checkoutSvc *checkout.Service,
	withdrawals *withdrawal.Engine,
	refunds *refund.Service,
	led *ledger.Service,
	profiles *repository.PayoutProfileRepo,
	webhooks *WebhookHandler,
	jwtSecret string,
) http.Handler {
	h := &Handlers{
		checkout:    checkoutSvc,
		withdrawals: withdrawals,
		refunds:     refunds,
		ledger:      led,
		profiles:    profiles,
		webhooks:    webhooks,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	// Provider notifications: authenticated by signature, throttled per IP.
	webhookLimiter := newIPRateLimiter(rate.Limit(10), 30)
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Use(webhookLimiter.middleware)
		r.Post("/{gateway}", webhooks.Handle)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Use(Auth(jwtSecret))

		// Orders and checkout.
		r.Post("/orders", h.CreateOrder)
		r.Post("/checkout", h.StartCheckout)
		r.Get("/payments/verify", h.VerifyPayment)

		// Withdrawals.
		r.Post("/withdrawals", h.CreateWithdrawal)
		r.Get("/withdrawals", h.ListWithdrawals)

		// Wallet and payout profile.
		r.Get("/wallet", h.GetWallet)
		r.Get("/payout-info", h.GetPayoutInfo)
		r.Put("/payout-info", h.UpdatePayoutInfo)

		// Privileged operations.
		r.Group(func(r chi.Router) {
			r.Use(AdminOnly)
			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/disburse", h.DisburseWithdrawal)
			r.Post("/payments/{id}/refund", h.RefundPayment)
		})
	})

	return r
}
