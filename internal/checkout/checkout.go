// Package checkout turns an order into a provider payment session and
// offers the verification fallback for buyers whose webhook never
// arrived.
package checkout

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/gradesworld/paycore/internal/currency"
	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/reconciliation"
	"github.com/gradesworld/paycore/internal/repository"
)

// kesGateways are the providers that charge in Kenyan shillings
// regardless of the order's pricing currency.
var kesGateways = map[domain.Gateway]bool{
	domain.GatewayMpesa:    true,
	domain.GatewayIntaSend: true,
}

// mobileMoneyGateways get a QR code alongside the checkout URL so the
// buyer can continue on their phone.
var mobileMoneyGateways = map[domain.Gateway]bool{
	domain.GatewayMpesa:    true,
	domain.GatewayIntaSend: true,
	domain.GatewayPesapal:  true,
}

type Service struct {
	orders   *repository.OrderRepo
	payments *repository.PaymentRepo
	gateways *gateway.Registry
	recon    *reconciliation.Service
}

func NewService(
	orders *repository.OrderRepo,
	payments *repository.PaymentRepo,
	gateways *gateway.Registry,
	recon *reconciliation.Service,
) *Service {
	return &Service{orders: orders, payments: payments, gateways: gateways, recon: recon}
}

// CreateOrder validates and persists a new order on behalf of the
// storefront collaborator.
func (s *Service) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.AmountCents <= 0 {
		return fmt.Errorf("%w: order amount must be positive", domain.ErrInvalidAmount)
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	if !currency.Supported(order.Currency) {
		return fmt.Errorf("%w: unsupported currency %s", domain.ErrInvalidAmount, order.Currency)
	}
	// Seller wallets hold USD and settlement credits in the order's
	// currency, so orders are priced in USD only. The Kenyan processors
	// still charge shillings; that conversion happens at checkout.
	if order.Currency != "USD" {
		return fmt.Errorf("%w: orders are priced in USD, got %s", domain.ErrInvalidAmount, order.Currency)
	}
	if order.BuyerID == "" || order.SellerID == "" || len(order.PaperIDs) == 0 {
		return fmt.Errorf("%w: buyer, seller and papers are required", domain.ErrInvalidAmount)
	}
	return s.orders.Insert(order)
}

type StartRequest struct {
	OrderID       string
	Gateway       domain.Gateway
	PhoneNumber   string
	CustomerEmail string
}

type StartResponse struct {
	PaymentID   string `json:"payment_id"`
	ExternalRef string `json:"external_reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	QRCode      string `json:"qr_code,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Start opens a provider session for the order and records the Payment
// in the created state. KES-only providers are charged the converted
// amount; the order keeps its original pricing.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	if !req.Gateway.Valid() {
		return nil, fmt.Errorf("unknown gateway %q", req.Gateway)
	}

	order, err := s.orders.GetByID(req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.ID, order.Status)
	}

	adapter, err := s.gateways.Select(req.Gateway)
	if err != nil {
		return nil, err
	}

	chargeCents := order.AmountCents
	chargeCurrency := order.Currency
	if kesGateways[req.Gateway] && order.Currency != "KES" {
		chargeCents, err = currency.ConvertCents(order.AmountCents, order.Currency, "KES")
		if err != nil {
			return nil, err
		}
		chargeCurrency = "KES"
	}

	sess, err := adapter.InitiateCheckout(ctx, gateway.CheckoutRequest{
		OrderID:       order.ID,
		AmountCents:   chargeCents,
		Currency:      chargeCurrency,
		CustomerEmail: req.CustomerEmail,
		Description:   fmt.Sprintf("Order %s (%d papers)", order.ID, len(order.PaperIDs)),
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		OrderID:       order.ID,
		Gateway:       req.Gateway,
		ExternalID:    sess.ExternalRef,
		AmountCents:   chargeCents,
		Currency:      chargeCurrency,
		Status:        domain.PaymentCreated,
		CustomerEmail: req.CustomerEmail,
		Description:   fmt.Sprintf("Order %s", order.ID),
	}
	if err := s.payments.Insert(payment); err != nil {
		return nil, err
	}

	resp := &StartResponse{
		PaymentID:   payment.ID,
		ExternalRef: sess.ExternalRef,
		CheckoutURL: sess.CheckoutURL,
		AmountCents: chargeCents,
		Currency:    chargeCurrency,
	}
	if mobileMoneyGateways[req.Gateway] && sess.CheckoutURL != "" {
		if qr, err := qrDataURI(sess.CheckoutURL); err == nil {
			resp.QRCode = qr
		} else {
			log.Printf("[checkout] qr generation for %s: %v", order.ID, err)
		}
	}

	log.Printf("[checkout] order %s: session %s opened on %s (%d %s)",
		order.ID, sess.ExternalRef, req.Gateway, chargeCents, chargeCurrency)
	return resp, nil
}

// Verify is the fallback for a buyer whose webhook is delayed: poll the
// provider for authoritative status and feed the answer through the
// same reconciliation path the webhook would have taken.
func (s *Service) Verify(ctx context.Context, orderID, sessionID string) (*domain.Payment, error) {
	var payment *domain.Payment
	var err error
	switch {
	case orderID != "":
		payment, err = s.payments.GetByOrderID(orderID)
	case sessionID != "":
		payment, err = s.payments.GetByExternalID(sessionID)
	default:
		return nil, fmt.Errorf("order_id or session_id required")
	}
	if err != nil {
		return nil, err
	}

	adapter, err := s.gateways.Select(payment.Gateway)
	if err != nil {
		return nil, err
	}

	status, err := adapter.VerifyPayment(ctx, payment.ExternalID)
	if err != nil {
		return nil, err
	}

	if status != "" && status != payment.Status {
		if err := s.recon.UpdateStatus(ctx, payment.Gateway, payment.ExternalID, status); err != nil {
			// Stale transitions are fine here; the stored status wins.
			log.Printf("[checkout] verify %s/%s: %v", payment.Gateway, payment.ExternalID, err)
		}
	}
	return s.payments.GetByID(payment.ID)
}

func qrDataURI(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
