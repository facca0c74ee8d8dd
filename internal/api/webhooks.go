package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gradesworld/paycore/internal/domain"
	"github.com/gradesworld/paycore/internal/gateway"
	"github.com/gradesworld/paycore/internal/metrics"
	"github.com/gradesworld/paycore/internal/reconciliation"
	"github.com/gradesworld/paycore/internal/repository"
	"github.com/gradesworld/paycore/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookHandler accepts provider notifications. The response code
// controls gateway redelivery: 200 acknowledges (including events we
// choose to ignore), 401 rejects an unauthenticated delivery, 400 an
// unreadable one.
type WebhookHandler struct {
	verifiers map[domain.Gateway]webhook.Verifier
	payments  *repository.PaymentRepo
	events    *repository.EventRepo
	recon     *reconciliation.Service
	gateways  *gateway.Registry
}

func NewWebhookHandler(
	verifiers map[domain.Gateway]webhook.Verifier,
	payments *repository.PaymentRepo,
	events *repository.EventRepo,
	recon *reconciliation.Service,
	gateways *gateway.Registry,
) *WebhookHandler {
	return &WebhookHandler{
		verifiers: verifiers,
		payments:  payments,
		events:    events,
		recon:     recon,
		gateways:  gateways,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	gw := domain.Gateway(chi.URLParam(r, "gateway"))
	if !gw.Valid() {
		writeError(w, http.StatusNotFound, "unknown gateway")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	// Authenticate before trusting a single byte of the payload.
	verifier, ok := h.verifiers[gw]
	if !ok {
		metrics.WebhooksReceived.WithLabelValues(string(gw), "invalid_signature").Inc()
		writeError(w, http.StatusUnauthorized, "webhook verification not configured")
		return
	}
	if err := verifier.Verify(r.Context(), r.Header, body); err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(gw), "invalid_signature").Inc()
		log.Printf("[webhook] %s: %v", gw, err)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := webhook.Parse(gw, body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(gw), "bad_payload").Inc()
		log.Printf("[webhook] %s: %v", gw, err)
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	payment, err := h.payments.GetByExternalRef(gw, ev.ExternalRef)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			// The local record may lag the gateway; acknowledge so the
			// provider does not retry forever.
			metrics.WebhooksReceived.WithLabelValues(string(gw), "unknown_payment").Inc()
			log.Printf("[webhook] %s: no payment for ref %s", gw, ev.ExternalRef)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := h.events.Record(payment.ID, gw, domain.EventWebhookReceived, body); err != nil {
		log.Printf("[webhook] record event for %s: %v", payment.ID, err)
	}

	status := ev.Status
	if status == "" {
		// Notification carries no outcome (PesaPal IPN): ask the
		// provider for the authoritative state.
		adapter, err := h.gateways.Select(gw)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		status, err = adapter.VerifyPayment(r.Context(), ev.ExternalRef)
		if err != nil {
			// Let the provider redeliver once it is reachable again.
			metrics.WebhooksReceived.WithLabelValues(string(gw), "accepted").Inc()
			log.Printf("[webhook] %s: status poll for %s: %v", gw, ev.ExternalRef, err)
			writeError(w, http.StatusBadGateway, "provider status poll failed")
			return
		}
	}

	if err := h.recon.UpdateStatus(r.Context(), gw, ev.ExternalRef, status); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Stale or out-of-order delivery: acknowledged and dropped.
			metrics.WebhooksReceived.WithLabelValues(string(gw), "accepted").Inc()
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.WebhooksReceived.WithLabelValues(string(gw), "accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
