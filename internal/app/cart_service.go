package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

const maxNotesLength = 500

// cartService is the implementation of the CartService port. All mutations
// of a single cart are serialized through a per-owner keyed mutex; carts of
// different owners proceed independently.
type cartService struct {
	carts   ports.CartRepository
	stock   *StockValidator
	pricing domain.PricingPolicy
	locks   *keyedMutex
	logger  *slog.Logger
}

// NewCartService wires the cart store with its collaborators.
func NewCartService(carts ports.CartRepository, stock *StockValidator, pricing domain.PricingPolicy, logger *slog.Logger) *cartService {
	return &cartService{
		carts:   carts,
		stock:   stock,
		pricing: pricing,
		locks:   newKeyedMutex(),
		logger:  logger,
	}
}

var _ ports.CartService = (*cartService)(nil)
var _ ports.CheckoutCartStore = (*cartService)(nil)

func cartLockKey(ownerID string) string { return "cart:" + ownerID }

// GetOrCreateActiveCart returns the owner's single active cart, creating an
// empty one lazily. The repository enforces uniqueness of the active cart,
// so a concurrent create loses the race and re-reads instead of duplicating.
func (s *cartService) GetOrCreateActiveCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	return s.getOrCreateLocked(ctx, ownerID)
}

func (s *cartService) getOrCreateLocked(ctx context.Context, ownerID string) (*domain.Cart, error) {
	cart, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return nil, err
	}

	cart = domain.NewCart(ownerID, s.pricing.DefaultCurrency)
	if err := s.carts.Create(ctx, cart); err != nil {
		if errors.Is(err, domain.ErrActiveCartExists) {
			// Lost the race against another request for the same owner.
			return s.carts.GetActiveByOwner(ctx, ownerID)
		}
		return nil, err
	}
	s.logger.Info("created active cart", "owner_id", ownerID, "cart_id", cart.ID)
	return cart, nil
}

// AddItem resolves the product, validates cumulative stock, then merges into
// an existing line or appends a new one with a price snapshot. Nothing is
// persisted when any step fails, so a failed add leaves the cart unchanged.
func (s *cartService) AddItem(ctx context.Context, ownerID string, in ports.AddItemInput) (*domain.Cart, error) {
	if in.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if len(in.Notes) > maxNotesLength {
		return nil, domain.ErrNotesTooLong
	}

	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	cart, err := s.getOrCreateLocked(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cart.Status != domain.CartStatusActive {
		return nil, domain.ErrCartNotActive
	}

	candidate := domain.CartItem{
		ProductID:        in.ProductID,
		VariantID:        in.VariantID,
		CustomAttributes: in.CustomAttributes,
	}
	key := candidate.MergeKey()
	cumulative := cart.QuantityForKey(key) + in.Quantity

	info, err := s.stock.CheckAvailability(ctx, in.ProductID, in.VariantID, cumulative)
	if err != nil {
		return nil, err
	}
	if info.Currency != cart.Currency {
		return nil, domain.ErrCurrencyMismatch
	}

	if existing := cart.FindItemByKey(key); existing != nil {
		existing.Quantity = cumulative
		if in.Notes != "" {
			existing.Notes = in.Notes
		}
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:               uuid.New(),
			CartID:           cart.ID,
			ProductID:        in.ProductID,
			VariantID:        in.VariantID,
			Quantity:         in.Quantity,
			UnitPrice:        info.Price, // snapshot at add time
			Currency:         info.Currency,
			CustomAttributes: in.CustomAttributes,
			Notes:            in.Notes,
			AddedAt:          time.Now().UTC(),
		})
	}

	cart.Recalculate(s.pricing)
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.Update(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateItemQuantity sets a new quantity after re-validating stock. Zero is
// rejected: callers must use RemoveItem so removal is always explicit.
func (s *cartService) UpdateItemQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	cart, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	item := cart.FindItem(itemID)
	if item == nil {
		return nil, domain.ErrItemNotFound
	}

	if _, err := s.stock.CheckAvailability(ctx, item.ProductID, item.VariantID, quantity); err != nil {
		return nil, err
	}

	item.Quantity = quantity
	cart.Recalculate(s.pricing)
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.Update(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops a line from the cart. Removing an absent item is a
// successful no-op.
func (s *cartService) RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (*domain.Cart, error) {
	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	cart, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !cart.RemoveItem(itemID) {
		return cart, nil
	}

	cart.Recalculate(s.pricing)
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.Update(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear empties the cart. Clearing an already empty cart is a no-op.
func (s *cartService) Clear(ctx context.Context, ownerID string) (*domain.Cart, error) {
	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	cart, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return cart, nil
	}

	cart.Items = nil
	cart.Recalculate(s.pricing)
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.Update(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Summary is a pure read of the stored totals.
func (s *cartService) Summary(ctx context.Context, ownerID string) (*domain.CartSummary, error) {
	cart, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	summary := cart.Summary()
	return &summary, nil
}

// SnapshotForCheckout re-fetches the cart and re-runs stock validation for
// every item under the cart lock, protecting against staleness between cart
// edit and checkout. The returned cart carries the totals the transaction
// amount is snapshotted from.
func (s *cartService) SnapshotForCheckout(ctx context.Context, ownerID string, cartID uuid.UUID) (*domain.Cart, error) {
	s.locks.Lock(cartLockKey(ownerID))
	defer s.locks.Unlock(cartLockKey(ownerID))

	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.OwnerID != ownerID {
		return nil, domain.ErrCartNotFound
	}
	if cart.Status != domain.CartStatusActive || cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	for _, item := range cart.Items {
		if _, err := s.stock.CheckAvailability(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			return nil, err
		}
	}

	cart.Recalculate(s.pricing)
	return cart, nil
}

// Lock marks the cart locked after a successful payment so it can no longer
// be mutated and the owner gets a fresh active cart on the next visit.
func (s *cartService) Lock(ctx context.Context, cartID uuid.UUID) error {
	return s.carts.SetStatus(ctx, cartID, domain.CartStatusLocked)
}
