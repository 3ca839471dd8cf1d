package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
)

// CartRepository is an outgoing port. It defines WHAT we want from cart
// storage, not HOW. Implementations exist for PostgreSQL and in-memory.
type CartRepository interface {
	// GetActiveByOwner returns the owner's single active cart or
	// domain.ErrCartNotFound.
	GetActiveByOwner(ctx context.Context, ownerID string) (*domain.Cart, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	// Create persists a new cart. It returns domain.ErrActiveCartExists when
	// the owner already has an active cart (uniqueness is enforced by the
	// store, not by the caller).
	Create(ctx context.Context, cart *domain.Cart) error
	// Update persists the cart with its items and totals.
	Update(ctx context.Context, cart *domain.Cart) error
	// SetStatus moves the cart lifecycle (active -> locked/abandoned).
	SetStatus(ctx context.Context, id uuid.UUID, status domain.CartStatus) error
}

// TransactionRepository stores payment transactions.
type TransactionRepository interface {
	// Create persists a new transaction. It returns
	// domain.ErrIdempotencyKeyUsed when a transaction with the same
	// idempotency key already exists.
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error)
	// Update persists mutable fields (status, refs, metadata, fee). The
	// external reference is set at most once; stores must not overwrite a
	// non-empty one.
	Update(ctx context.Context, tx *domain.Transaction) error
}

// PaymentMethodRepository stores saved payment methods.
type PaymentMethodRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.PaymentMethod, error)
	Create(ctx context.Context, m *domain.PaymentMethod) error
	// SetDefault marks the method as default and clears the flag on every
	// other method of the same owner.
	SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error
}

// CatalogGateway is the read-only product lookup consumed by the cart store.
// The catalog itself is an external collaborator.
type CatalogGateway interface {
	// GetProduct resolves price, currency, activity and available stock for
	// a product or variant. Returns domain.ErrProductNotFound when absent.
	GetProduct(ctx context.Context, productID, variantID string) (*domain.ProductInfo, error)
}

// PaymentGateway is the translation boundary in front of one external
// payment provider. Every outbound call carries the transaction id as the
// provider idempotency key, and every inbound status is mapped through an
// exhaustive lookup table.
type PaymentGateway interface {
	Name() string
	CreateCheckout(ctx context.Context, tx *domain.Transaction) (*domain.CheckoutSession, error)
	QueryStatus(ctx context.Context, txRef string) (*domain.ProviderStatus, error)
	Refund(ctx context.Context, txRef string, amount decimal.Decimal) (*domain.ProviderStatus, error)
	// VerifyWebhookSignature checks the provider signature over the raw
	// webhook body.
	VerifyWebhookSignature(body []byte, signature string) bool
	// ParseWebhookEvent normalizes a raw webhook body into a ProviderEvent.
	ParseWebhookEvent(body []byte) (*domain.ProviderEvent, error)
}

// EventPublisher is the outgoing port for transaction lifecycle events.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event domain.TransactionEvent) error
}

// RateLimiterRepository backs the fixed-window request rate limiter.
type RateLimiterRepository interface {
	IsAllowed(ctx context.Context, key string, limit int, windowSeconds int) (bool, error)
}

// AddItemInput carries everything needed to add one line to a cart.
type AddItemInput struct {
	ProductID        string
	VariantID        string
	Quantity         int
	CustomAttributes map[string]string
	Notes            string
}

// InitiateInput describes a payment initiation: either a cart to derive the
// amount from, or an explicit amount and currency.
type InitiateInput struct {
	Provider       string
	CartID         *uuid.UUID
	Amount         *decimal.Decimal
	Currency       string
	Description    string
	Reference      string
	Metadata       map[string]any
	IdempotencyKey string
}

// CartService is the incoming port for the cart store.
type CartService interface {
	GetOrCreateActiveCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, ownerID string, in AddItemInput) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, ownerID string) (*domain.Cart, error)
	Summary(ctx context.Context, ownerID string) (*domain.CartSummary, error)
}

// CheckoutCartStore is the narrow slice of the cart store the payment
// orchestrator needs: a checkout-time snapshot and a lock on success.
type CheckoutCartStore interface {
	// SnapshotForCheckout re-fetches the cart, re-validates stock for every
	// item and returns it with fresh totals. Fails with domain.ErrEmptyCart
	// when the cart is empty or not active.
	SnapshotForCheckout(ctx context.Context, ownerID string, cartID uuid.UUID) (*domain.Cart, error)
	// Lock marks the cart locked after a successful payment.
	Lock(ctx context.Context, cartID uuid.UUID) error
}

// PaymentService is the incoming port for the transaction orchestrator.
type PaymentService interface {
	Initiate(ctx context.Context, ownerID string, in InitiateInput) (*domain.Transaction, error)
	Verify(ctx context.Context, ownerID string, txRef string) (*domain.Transaction, error)
	ApplyProviderEvent(ctx context.Context, provider string, event *domain.ProviderEvent) error
	Refund(ctx context.Context, ownerID string, txID uuid.UUID, amount *decimal.Decimal, reason string) (*domain.Transaction, error)
	Get(ctx context.Context, ownerID string, txID uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error)
}
