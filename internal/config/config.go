// Package config loads runtime settings from the environment, with a
// .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gradesworld/paycore/internal/gateway"
)

type Config struct {
	Port   string
	DBPath string

	JWTSecret string

	SellerSharePercent int64
	MinWithdrawalCents int64
	WithdrawalCooldown time.Duration
	SweepInterval      time.Duration
	DisburseTimeout    time.Duration
	// RestoreBalanceOnPayoutFailure returns earmarked funds to the wallet
	// when a disbursement permanently fails. Off by default; failures are
	// resolved by an administrator.
	RestoreBalanceOnPayoutFailure bool

	KafkaBrokers   []string
	KafkaTopic     string
	OutboxInterval time.Duration

	Stripe   gateway.StripeConfig
	PayPal   gateway.PayPalConfig
	Mpesa    gateway.MpesaConfig
	Paystack gateway.PaystackConfig
	Pesapal  gateway.PesapalConfig
	IntaSend gateway.IntaSendConfig

	StripeWebhookSecret   string
	PayPalWebhookID       string
	MpesaCallbackSecret   string
	PesapalCallbackSecret string
	IntaSendChallenge     string
}

// Load reads the environment (and .env, when present) into a Config.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		Port:   envStr("PORT", "8080"),
		DBPath: envStr("DB_PATH", "paycore.db"),

		JWTSecret: envStr("JWT_SECRET", ""),

		SellerSharePercent: envInt64("SELLER_SHARE_PERCENT", 65),
		MinWithdrawalCents: envInt64("MIN_WITHDRAWAL_CENTS", 1000),
		WithdrawalCooldown: envDuration("WITHDRAWAL_COOLDOWN", 7*24*time.Hour),
		SweepInterval:      envDuration("SWEEP_INTERVAL", 7*24*time.Hour),
		DisburseTimeout:    envDuration("DISBURSE_TIMEOUT", 30*time.Second),

		RestoreBalanceOnPayoutFailure: envBool("RESTORE_BALANCE_ON_PAYOUT_FAILURE", false),

		KafkaBrokers:   strings.Split(envStr("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:     envStr("KAFKA_TOPIC", "paycore.notifications"),
		OutboxInterval: envDuration("OUTBOX_INTERVAL", 5*time.Second),

		Stripe: gateway.StripeConfig{
			SecretKey:  envStr("STRIPE_SECRET_KEY", ""),
			BaseURL:    envStr("STRIPE_BASE_URL", ""),
			SuccessURL: envStr("STRIPE_SUCCESS_URL", ""),
			CancelURL:  envStr("STRIPE_CANCEL_URL", ""),
		},
		PayPal: gateway.PayPalConfig{
			ClientID:  envStr("PAYPAL_CLIENT_ID", ""),
			Secret:    envStr("PAYPAL_SECRET", ""),
			BaseURL:   envStr("PAYPAL_BASE_URL", ""),
			ReturnURL: envStr("PAYPAL_RETURN_URL", ""),
			CancelURL: envStr("PAYPAL_CANCEL_URL", ""),
		},
		Mpesa: gateway.MpesaConfig{
			ConsumerKey:        envStr("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:     envStr("MPESA_CONSUMER_SECRET", ""),
			ShortCode:          envStr("MPESA_SHORTCODE", ""),
			Passkey:            envStr("MPESA_PASSKEY", ""),
			InitiatorName:      envStr("MPESA_INITIATOR_NAME", ""),
			SecurityCredential: envStr("MPESA_SECURITY_CREDENTIAL", ""),
			BaseURL:            envStr("MPESA_BASE_URL", ""),
			CallbackURL:        envStr("MPESA_CALLBACK_URL", ""),
			ResultURL:          envStr("MPESA_RESULT_URL", ""),
			TimeoutURL:         envStr("MPESA_TIMEOUT_URL", ""),
		},
		Paystack: gateway.PaystackConfig{
			SecretKey:   envStr("PAYSTACK_SECRET_KEY", ""),
			BaseURL:     envStr("PAYSTACK_BASE_URL", ""),
			CallbackURL: envStr("PAYSTACK_CALLBACK_URL", ""),
		},
		Pesapal: gateway.PesapalConfig{
			ConsumerKey:    envStr("PESAPAL_CONSUMER_KEY", ""),
			ConsumerSecret: envStr("PESAPAL_CONSUMER_SECRET", ""),
			BaseURL:        envStr("PESAPAL_BASE_URL", ""),
			CallbackURL:    envStr("PESAPAL_CALLBACK_URL", ""),
			NotificationID: envStr("PESAPAL_NOTIFICATION_ID", ""),
		},
		IntaSend: gateway.IntaSendConfig{
			SecretKey:   envStr("INTASEND_SECRET_KEY", ""),
			BaseURL:     envStr("INTASEND_BASE_URL", ""),
			RedirectURL: envStr("INTASEND_REDIRECT_URL", ""),
		},

		StripeWebhookSecret:   envStr("STRIPE_WEBHOOK_SECRET", ""),
		PayPalWebhookID:       envStr("PAYPAL_WEBHOOK_ID", ""),
		MpesaCallbackSecret:   envStr("MPESA_CALLBACK_SECRET", ""),
		PesapalCallbackSecret: envStr("PESAPAL_CALLBACK_SECRET", ""),
		IntaSendChallenge:     envStr("INTASEND_CHALLENGE", ""),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("[config] invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("[config] invalid %s=%q, using %t", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[config] invalid %s=%q, using %s", key, v, def)
	}
	return def
}
