package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/legennd48/bazary/internal/core/ports"
	"github.com/legennd48/bazary/internal/observability"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler is the public intake for provider callbacks. It
// authenticates deliveries by signature, never by session, and always
// answers fast: heavy work stays in the orchestrator, and deliveries we
// cannot use (unknown transaction, duplicate, out-of-order) are accepted
// with 200 so providers stop retrying them.
type WebhookHandler struct {
	service  ports.PaymentService
	gateways map[string]ports.PaymentGateway
	logger   *slog.Logger
}

func NewWebhookHandler(service ports.PaymentService, gateways map[string]ports.PaymentGateway, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:  service,
		gateways: gateways,
		logger:   logger,
	}
}

// HandleWebhook processes POST /webhooks/{provider}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	gateway, ok := h.gateways[provider]
	if !ok {
		writeJSONError(w, "unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "provider", provider, "error", err)
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Chapa-Signature")
	if signature == "" {
		signature = r.Header.Get("Chapa-Signature")
	}
	if !gateway.VerifyWebhookSignature(body, signature) {
		observability.CountWebhookEvent(provider, "rejected_signature")
		h.logger.Warn("webhook signature verification failed", "provider", provider)
		writeJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		// Authenticated but malformed. Acknowledge so the provider does not
		// retry a payload we will never be able to parse.
		observability.CountWebhookEvent(provider, "unparseable")
		h.logger.Warn("webhook payload could not be parsed", "provider", provider, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.service.ApplyProviderEvent(r.Context(), provider, event); err != nil {
		// A storage failure here means the delivery was not applied; a 5xx
		// makes the provider redeliver later.
		observability.CountWebhookEvent(provider, "failed")
		h.logger.Error("failed to apply webhook event", "provider", provider, "tx_ref", event.TxRef, "error", err)
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	observability.CountWebhookEvent(provider, "accepted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
