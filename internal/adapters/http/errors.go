package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/legennd48/bazary/internal/core/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// respondError maps domain errors onto HTTP statuses. Validation and
// not-found failures are never retried automatically; provider failures
// surface as 502 so callers know the upstream, not this service, rejected.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var stockErr *domain.InsufficientStockError
	var provErr *domain.ProviderError

	switch {
	case errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrMethodNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})

	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrNotesTooLong),
		errors.Is(err, domain.ErrUnknownProvider),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrProductUnavailable):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation_error"})

	case errors.As(err, &stockErr):
		available := stockErr.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     stockErr.Error(),
			Code:      "insufficient_stock",
			Available: &available,
		})

	case errors.Is(err, domain.ErrCartNotActive),
		errors.Is(err, domain.ErrNotRefundable),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrIdempotencyKeyUsed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "conflict"})

	case errors.As(err, &provErr):
		logger.Warn("payment provider failure", "provider", provErr.Provider, "code", provErr.Code, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: provErr.Message, Code: provErr.Code})

	default:
		logger.Error("unexpected error", "error", err)
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
