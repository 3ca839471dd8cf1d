package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrItemNotFound        = errors.New("cart item not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrMethodNotFound      = errors.New("payment method not found")

	ErrProductUnavailable = errors.New("product is not available")
	ErrEmptyCart          = errors.New("cart is empty or not active")
	ErrCartNotActive      = errors.New("cart is not active")
	ErrActiveCartExists   = errors.New("owner already has an active cart")

	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrNotesTooLong     = errors.New("notes exceed the allowed length")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrCurrencyMismatch = errors.New("currency does not match cart currency")
	ErrUnknownProvider  = errors.New("unknown payment provider")

	ErrIdempotencyKeyUsed = errors.New("idempotency key already used")
	ErrIllegalTransition  = errors.New("illegal transaction status transition")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrNotRefundable      = errors.New("transaction is not refundable")
)

// InsufficientStockError carries the available count so callers can tell the
// client how many units are actually left.
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("insufficient stock for product %s variant %s: requested %d, available %d",
			e.ProductID, e.VariantID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ProviderError wraps a payment provider failure. Retryable marks transport
// level failures (timeouts, connection errors) that leave the provider-side
// state unknown and must be reconciled later, as opposed to hard rejections.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error %s: %s", e.Provider, e.Code, e.Message)
}
