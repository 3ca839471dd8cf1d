package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// CartHandler exposes the cart store over HTTP. Every route is owner-scoped:
// the principal comes from the JWT middleware and is never taken from the
// request body.
type CartHandler struct {
	service ports.CartService
	logger  *slog.Logger
}

func NewCartHandler(service ports.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		logger:  logger,
	}
}

type addItemRequest struct {
	ProductID        string            `json:"product_id"`
	VariantID        string            `json:"variant_id,omitempty"`
	Quantity         int               `json:"quantity"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartItemResponse struct {
	ID               uuid.UUID         `json:"id"`
	ProductID        string            `json:"product_id"`
	VariantID        string            `json:"variant_id,omitempty"`
	Quantity         int               `json:"quantity"`
	UnitPrice        string            `json:"unit_price"`
	LineTotal        string            `json:"line_total"`
	Currency         string            `json:"currency"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	AddedAt          time.Time         `json:"added_at"`
}

type cartResponse struct {
	ID             uuid.UUID          `json:"id"`
	Status         domain.CartStatus  `json:"status"`
	Currency       string             `json:"currency"`
	Items          []cartItemResponse `json:"items"`
	ItemCount      int                `json:"item_count"`
	Subtotal       string             `json:"subtotal"`
	TaxAmount      string             `json:"tax_amount"`
	ShippingAmount string             `json:"shipping_amount"`
	DiscountAmount string             `json:"discount_amount"`
	Total          string             `json:"total"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type cartSummaryResponse struct {
	CartID    uuid.UUID         `json:"cart_id"`
	Status    domain.CartStatus `json:"status"`
	Currency  string            `json:"currency"`
	ItemCount int               `json:"item_count"`
	Subtotal  string            `json:"subtotal"`
	Tax       string            `json:"tax"`
	Shipping  string            `json:"shipping"`
	Discount  string            `json:"discount"`
	Total     string            `json:"total"`
}

func toCartResponse(cart *domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemResponse{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice.String(),
			LineTotal:        item.LineTotal().String(),
			Currency:         item.Currency,
			CustomAttributes: item.CustomAttributes,
			Notes:            item.Notes,
			AddedAt:          item.AddedAt,
		})
	}
	return cartResponse{
		ID:             cart.ID,
		Status:         cart.Status,
		Currency:       cart.Currency,
		Items:          items,
		ItemCount:      cart.ItemCount(),
		Subtotal:       cart.Subtotal.String(),
		TaxAmount:      cart.TaxAmount.String(),
		ShippingAmount: cart.ShippingAmount.String(),
		DiscountAmount: cart.DiscountAmount.String(),
		Total:          cart.Total.String(),
		UpdatedAt:      cart.UpdatedAt,
	}
}

// HandleGetCart returns the owner's active cart, creating one when absent.
func (h *CartHandler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	cart, err := h.service.GetOrCreateActiveCart(r.Context(), ownerID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		writeJSONError(w, "product_id is required", http.StatusBadRequest)
		return
	}

	cart, err := h.service.AddItem(r.Context(), ownerID, ports.AddItemInput{
		ProductID:        req.ProductID,
		VariantID:        req.VariantID,
		Quantity:         req.Quantity,
		CustomAttributes: req.CustomAttributes,
		Notes:            req.Notes,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) HandleUpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSONError(w, "invalid item id", http.StatusBadRequest)
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.service.UpdateItemQuantity(r.Context(), ownerID, itemID, req.Quantity)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSONError(w, "invalid item id", http.StatusBadRequest)
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), ownerID, itemID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	cart, err := h.service.Clear(r.Context(), ownerID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	summary, err := h.service.Summary(r.Context(), ownerID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cartSummaryResponse{
		CartID:    summary.CartID,
		Status:    summary.Status,
		Currency:  summary.Currency,
		ItemCount: summary.ItemCount,
		Subtotal:  summary.Subtotal.String(),
		Tax:       summary.Tax.String(),
		Shipping:  summary.Shipping.String(),
		Discount:  summary.Discount.String(),
		Total:     summary.Total.String(),
	})
}
