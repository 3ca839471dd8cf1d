package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// PaymentHandler exposes the transaction orchestrator and the saved payment
// methods over HTTP.
type PaymentHandler struct {
	service   ports.PaymentService
	methods   ports.PaymentMethodRepository
	providers []string
	logger    *slog.Logger
}

// NewPaymentHandler takes the configured provider names so the handler can
// answer the providers listing without reaching into the orchestrator.
func NewPaymentHandler(service ports.PaymentService, methods ports.PaymentMethodRepository, providers []string, logger *slog.Logger) *PaymentHandler {
	sorted := append([]string(nil), providers...)
	sort.Strings(sorted)
	return &PaymentHandler{
		service:   service,
		methods:   methods,
		providers: sorted,
		logger:    logger,
	}
}

type initiateRequest struct {
	Provider       string         `json:"provider"`
	CartID         string         `json:"cart_id,omitempty"`
	Amount         string         `json:"amount,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	Description    string         `json:"description,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type verifyRequest struct {
	TxRef string `json:"tx_ref"`
}

type refundRequest struct {
	Amount string `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type createMethodRequest struct {
	Provider   string `json:"provider"`
	MethodType string `json:"method_type"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	IsDefault  bool   `json:"is_default,omitempty"`
}

type transactionResponse struct {
	ID           uuid.UUID                `json:"id"`
	CartID       *uuid.UUID               `json:"cart_id,omitempty"`
	Provider     string                   `json:"provider"`
	Amount       string                   `json:"amount"`
	Currency     string                   `json:"currency"`
	Status       domain.TransactionStatus `json:"status"`
	ExternalRef  string                   `json:"external_ref,omitempty"`
	CheckoutURL  string                   `json:"checkout_url,omitempty"`
	Description  string                   `json:"description,omitempty"`
	Reference    string                   `json:"reference,omitempty"`
	ProviderFee  string                   `json:"provider_fee,omitempty"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	ProcessedAt  *time.Time               `json:"processed_at,omitempty"`
}

type paymentMethodResponse struct {
	ID         uuid.UUID `json:"id"`
	Provider   string    `json:"provider"`
	MethodType string    `json:"method_type"`
	Name       string    `json:"name"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:           tx.ID,
		CartID:       tx.CartID,
		Provider:     tx.Provider,
		Amount:       tx.Amount.String(),
		Currency:     tx.Currency,
		Status:       tx.Status,
		ExternalRef:  tx.ExternalRef,
		CheckoutURL:  tx.CheckoutURL,
		Description:  tx.Description,
		Reference:    tx.Reference,
		ErrorMessage: tx.ErrorMessage,
		CreatedAt:    tx.CreatedAt,
		ProcessedAt:  tx.ProcessedAt,
	}
	if tx.ProviderFee != nil {
		resp.ProviderFee = tx.ProviderFee.String()
	}
	return resp
}

func (h *PaymentHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.providers})
}

func (h *PaymentHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		writeJSONError(w, "provider is required", http.StatusBadRequest)
		return
	}

	in := ports.InitiateInput{
		Provider:       req.Provider,
		Currency:       req.Currency,
		Description:    req.Description,
		Reference:      req.Reference,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.CartID != "" {
		cartID, err := uuid.Parse(req.CartID)
		if err != nil {
			writeJSONError(w, "invalid cart id", http.StatusBadRequest)
			return
		}
		in.CartID = &cartID
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeJSONError(w, "invalid amount", http.StatusBadRequest)
			return
		}
		in.Amount = &amount
	}

	tx, err := h.service.Initiate(r.Context(), ownerID, in)
	if err != nil {
		// The transaction is persisted before the provider is contacted, so
		// a provider failure still leaves a record the client can poll.
		if tx != nil {
			h.logger.Warn("initiation completed with provider failure", "transaction_id", tx.ID, "error", err)
			writeJSON(w, http.StatusBadGateway, toTransactionResponse(tx))
			return
		}
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *PaymentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TxRef == "" {
		writeJSONError(w, "tx_ref is required", http.StatusBadRequest)
		return
	}

	tx, err := h.service.Verify(r.Context(), ownerID, req.TxRef)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *PaymentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	status := domain.TransactionStatus(r.URL.Query().Get("status"))
	txs, err := h.service.List(r.Context(), ownerID, status)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, toTransactionResponse(&txs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *PaymentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		writeJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	tx, err := h.service.Get(r.Context(), ownerID, txID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *PaymentHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		writeJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var req refundRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeJSONError(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = &parsed
	}

	tx, err := h.service.Refund(r.Context(), ownerID, txID, amount, req.Reason)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *PaymentHandler) HandleListMethods(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	methods, err := h.methods.ListByOwner(r.Context(), ownerID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	out := make([]paymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, paymentMethodResponse{
			ID:         m.ID,
			Provider:   m.Provider,
			MethodType: m.MethodType,
			Name:       m.Name,
			IsDefault:  m.IsDefault,
			CreatedAt:  m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": out})
}

func (h *PaymentHandler) HandleCreateMethod(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Provider == "" || req.Token == "" {
		writeJSONError(w, "provider and token are required", http.StatusBadRequest)
		return
	}

	method := &domain.PaymentMethod{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Provider:   req.Provider,
		MethodType: req.MethodType,
		Name:       req.Name,
		Token:      req.Token,
		IsDefault:  req.IsDefault,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.methods.Create(r.Context(), method); err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentMethodResponse{
		ID:         method.ID,
		Provider:   method.Provider,
		MethodType: method.MethodType,
		Name:       method.Name,
		IsDefault:  method.IsDefault,
		CreatedAt:  method.CreatedAt,
	})
}

func (h *PaymentHandler) HandleSetDefaultMethod(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	methodID, err := uuid.Parse(chi.URLParam(r, "methodID"))
	if err != nil {
		writeJSONError(w, "invalid method id", http.StatusBadRequest)
		return
	}

	if err := h.methods.SetDefault(r.Context(), ownerID, methodID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
