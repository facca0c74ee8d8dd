package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gradesworld/paycore/internal/api"
	"github.com/gradesworld/paycore/internal/checkout"
	"github.com/gradesworld/paycore/internal/config"
	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/notify"
	"github.com/gradesworld/paycore/internal/reconciliation"
	"github.com/gradesworld/paycore/internal/refund"
	"github.com/gradesworld/paycore/internal/repository"
	"github.com/gradesworld/paycore/internal/webhook"
	"github.com/gradesworld/paycore/internal/withdrawal"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Repositories.
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	events := repository.NewEventRepo(db)
	wallets := repository.NewWalletRepo(db)
	withdrawals := repository.NewWithdrawalRepo(db)
	profiles := repository.NewPayoutProfileRepo(db)
	outbox := repository.NewOutboxRepo(db)

	// Gateway adapters.
	registry := gateway.NewRegistry(
		gateway.NewStripe(cfg.Stripe),
		gateway.NewPayPal(cfg.PayPal),
		gateway.NewMpesa(cfg.Mpesa),
		gateway.NewPaystack(cfg.Paystack),
		gateway.NewPesapal(cfg.Pesapal),
		gateway.NewIntaSend(cfg.IntaSend),
	)

	// Services.
	led := ledger.NewService(wallets)
	recon := reconciliation.NewService(db, payments, orders, events, outbox, led, cfg.SellerSharePercent)
	checkoutSvc := checkout.NewService(orders, payments, registry, recon)
	engine := withdrawal.NewEngine(db, withdrawals, wallets, profiles, outbox, led, registry, withdrawal.Config{
		MinAmountCents:   cfg.MinWithdrawalCents,
		RestoreOnFailure: cfg.RestoreBalanceOnPayoutFailure,
		DisburseTimeout:  cfg.DisburseTimeout,
	})
	refundSvc := refund.NewService(payments, events, registry, recon, cfg.DisburseTimeout)

	// Webhook signature verification, one scheme per provider.
	paypalBase := cfg.PayPal.BaseURL
	if paypalBase == "" {
		paypalBase = "https://api-m.paypal.com"
	}
	verifiers := map[domain.Gateway]webhook.Verifier{
		domain.GatewayStripe: webhook.StripeVerifier{Secret: cfg.StripeWebhookSecret},
		domain.GatewayPayPal: webhook.PayPalVerifier{
			Tokens:    gateway.NewPayPal(cfg.PayPal),
			Client:    webhook.NewJSONPoster(15 * time.Second),
			BaseURL:   paypalBase,
			WebhookID: cfg.PayPalWebhookID,
		},
		domain.GatewayPaystack: webhook.HMACVerifier{
			Secret: cfg.Paystack.SecretKey,
			Header: "X-Paystack-Signature",
			SHA512: true,
		},
		domain.GatewayMpesa: webhook.HMACVerifier{
			Secret: cfg.MpesaCallbackSecret,
			Header: "X-Callback-Signature",
		},
		domain.GatewayPesapal: webhook.HMACVerifier{
			Secret: cfg.PesapalCallbackSecret,
			Header: "X-Callback-Signature",
		},
		domain.GatewayIntaSend: webhook.ChallengeVerifier{Challenge: cfg.IntaSendChallenge},
	}
	webhookHandler := api.NewWebhookHandler(verifiers, payments, events, recon, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbox dispatcher publishes committed events to Kafka.
	publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()
	dispatcher := notify.NewDispatcher(outbox, publisher, cfg.OutboxInterval)
	go dispatcher.Run(ctx)

	// Weekly sweep opens withdrawal requests for idle seller balances.
	sweeper := withdrawal.NewSweeper(engine, wallets, withdrawals, profiles,
		cfg.MinWithdrawalCents, cfg.WithdrawalCooldown, cfg.SweepInterval)
	go sweeper.Run(ctx)

	router := api.NewRouter(checkoutSvc, engine, refundSvc, led, profiles, webhookHandler, cfg.JWTSecret)

	log.Printf("GradesWorld Payment Core")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /webhooks/{gateway}")
	log.Printf("  POST   /api/v1/orders")
	log.Printf("  POST   /api/v1/checkout")
	log.Printf("  GET    /api/v1/payments/verify")
	log.Printf("  POST   /api/v1/withdrawals")
	log.Printf("  GET    /api/v1/withdrawals")
	log.Printf("  POST   /api/v1/withdrawals/{id}/approve")
	log.Printf("  POST   /api/v1/payments/{id}/refund")
	log.Printf("  GET    /api/v1/wallet")
	log.Printf("  GET    /api/v1/payout-info")
	log.Printf("  PUT    /api/v1/payout-info")
	log.Printf("  GET    /metrics")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
