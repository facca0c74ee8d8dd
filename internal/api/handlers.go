package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gradesworld/paycore/internal/checkout"
	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/ledger"
	"github.com/gradesworld/paycore/internal/refund"
	"github.com/gradesworld/paycore/internal/repository"
	"github.com/gradesworld/paycore/internal/withdrawal"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	checkout    *checkout.Service
	withdrawals *withdrawal.Engine
	refunds     *refund.Service
	ledger      *ledger.Service
	profiles    *repository.PayoutProfileRepo

	webhooks *WebhookHandler
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// --- orders & checkout ---

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerID    string   `json:"seller_id"`
		PaperIDs    []string `json:"paper_ids"`
		AmountCents int64    `json:"amount_cents"`
		Currency    string   `json:"currency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	order := &domain.Order{
		BuyerID:     UserID(r),
		SellerID:    req.SellerID,
		PaperIDs:    req.PaperIDs,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}
	if err := h.checkout.CreateOrder(r.Context(), order); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string `json:"order_id"`
		Gateway       string `json:"gateway"`
		PhoneNumber   string `json:"phone_number,omitempty"`
		CustomerEmail string `json:"customer_email,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.checkout.Start(r.Context(), checkout.StartRequest{
		OrderID:       req.OrderID,
		Gateway:       domain.Gateway(req.Gateway),
		PhoneNumber:   req.PhoneNumber,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payment, err := h.checkout.Verify(r.Context(), q.Get("order_id"), q.Get("session_id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound), errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// --- withdrawals ---

func (h *Handlers) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AmountCents int64  `json:"amount_cents"`
		Method      string `json:"method"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	wd, err := h.withdrawals.Create(r.Context(), UserID(r), req.AmountCents, domain.PayoutMethod(req.Method))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrWalletNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"withdrawal_id": wd.ID,
		"status":        wd.Status,
	})
}

func (h *Handlers) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdrawals.ListByUser(UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []domain.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": list})
}

func (h *Handlers) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Note string `json:"note,omitempty"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	wd, err := h.withdrawals.Approve(r.Context(), id, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWithdrawalNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// Disbursement talks to the payout provider; run it off the request
	// with a fresh context so the reply does not wait on the gateway.
	go func() {
		if err := h.withdrawals.Disburse(context.Background(), wd.ID); err != nil {
			log.Printf("[api] disburse %s: %v", wd.ID, err)
		}
	}()

	writeJSON(w, http.StatusOK, wd)
}

// DisburseWithdrawal re-runs disbursement for an approved request whose
// earlier attempt hit a retryable gateway error. Synchronous so the
// administrator sees the outcome.
func (h *Handlers) DisburseWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.withdrawals.Disburse(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrWithdrawalNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, domain.ErrPayoutRejected),
			errors.Is(err, domain.ErrNoPayoutProfile),
			errors.Is(err, domain.ErrMissingDestination):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	wd, err := h.withdrawals.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// --- refunds ---

func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.refunds.Refund(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, domain.ErrUnsupported):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

// --- wallet & payout profile ---

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.ledger.BalanceOf(UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Handlers) GetPayoutInfo(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	wallet, err := h.ledger.BalanceOf(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	profile, err := h.profiles.Get(userID)
	if err != nil && !errors.Is(err, domain.ErrNoPayoutProfile) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":  wallet,
		"profile": profile,
	})
}

func (h *Handlers) UpdatePayoutInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayPalEmail     string `json:"paypal_email,omitempty"`
		StripeAccountID string `json:"stripe_account_id,omitempty"`
		MpesaPhone      string `json:"mpesa_phone,omitempty"`
		PreferredMethod string `json:"preferred_method,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	method := domain.PayoutMethod(req.PreferredMethod)
	if req.PreferredMethod != "" && !method.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "unknown payout method")
		return
	}

	profile := &domain.UserPayoutProfile{
		UserID:          UserID(r),
		PayPalEmail:     req.PayPalEmail,
		StripeAccountID: req.StripeAccountID,
		MpesaPhone:      req.MpesaPhone,
		PreferredMethod: method,
	}
	if err := h.profiles.Upsert(profile); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
