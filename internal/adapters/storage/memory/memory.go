// Package memory provides in-memory implementations of the repository and
// catalog ports. They back the unit tests and the shopgen load generator;
// production wiring uses the postgres package.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// CartRepository keeps carts in a map guarded by a RWMutex. Values are
// deep-copied on the way in and out so callers never share slices or maps
// with the store.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[uuid.UUID]*domain.Cart
}

var _ ports.CartRepository = (*CartRepository)(nil)

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[uuid.UUID]*domain.Cart)}
}

func (r *CartRepository) GetActiveByOwner(_ context.Context, ownerID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cart := range r.carts {
		if cart.OwnerID == ownerID && cart.Status == domain.CartStatusActive {
			return copyCart(cart), nil
		}
	}
	return nil, domain.ErrCartNotFound
}

func (r *CartRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cart, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return copyCart(cart), nil
}

func (r *CartRepository) Create(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cart.Status == domain.CartStatusActive {
		for _, existing := range r.carts {
			if existing.OwnerID == cart.OwnerID && existing.Status == domain.CartStatusActive {
				return domain.ErrActiveCartExists
			}
		}
	}
	r.carts[cart.ID] = copyCart(cart)
	return nil
}

func (r *CartRepository) Update(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[cart.ID]; !ok {
		return domain.ErrCartNotFound
	}
	r.carts[cart.ID] = copyCart(cart)
	return nil
}

func (r *CartRepository) SetStatus(_ context.Context, id uuid.UUID, status domain.CartStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[id]
	if !ok {
		return domain.ErrCartNotFound
	}
	cart.Status = status
	cart.UpdatedAt = time.Now().UTC()
	return nil
}

func copyCart(cart *domain.Cart) *domain.Cart {
	dup := *cart
	dup.Items = make([]domain.CartItem, len(cart.Items))
	copy(dup.Items, cart.Items)
	for i := range dup.Items {
		if cart.Items[i].CustomAttributes != nil {
			attrs := make(map[string]string, len(cart.Items[i].CustomAttributes))
			for k, v := range cart.Items[i].CustomAttributes {
				attrs[k] = v
			}
			dup.Items[i].CustomAttributes = attrs
		}
	}
	return &dup
}

// TransactionRepository keeps transactions in maps indexed by id and
// idempotency key.
type TransactionRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*domain.Transaction
	byIdem map[string]uuid.UUID
}

var _ ports.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byID:   make(map[uuid.UUID]*domain.Transaction),
		byIdem: make(map[string]uuid.UUID),
	}
}

func (r *TransactionRepository) Create(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byIdem[tx.IdempotencyKey]; ok {
		return domain.ErrIdempotencyKeyUsed
	}
	r.byID[tx.ID] = copyTransaction(tx)
	r.byIdem[tx.IdempotencyKey] = tx.ID
	return nil
}

func (r *TransactionRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return copyTransaction(tx), nil
}

func (r *TransactionRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdem[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return copyTransaction(r.byID[id]), nil
}

func (r *TransactionRepository) GetByExternalRef(_ context.Context, ref string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ref == "" {
		return nil, domain.ErrTransactionNotFound
	}
	for _, tx := range r.byID {
		if tx.ExternalRef == ref {
			return copyTransaction(tx), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *TransactionRepository) ListByOwner(_ context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, tx := range r.byID {
		if tx.OwnerID != ownerID {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		result = append(result, *copyTransaction(tx))
	}
	return result, nil
}

func (r *TransactionRepository) Update(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[tx.ID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	dup := copyTransaction(tx)
	// External reference is write-once at the storage level too.
	if stored.ExternalRef != "" {
		dup.ExternalRef = stored.ExternalRef
	}
	r.byID[tx.ID] = dup
	return nil
}

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	dup := *tx
	if tx.Metadata != nil {
		meta := make(map[string]any, len(tx.Metadata))
		for k, v := range tx.Metadata {
			meta[k] = v
		}
		dup.Metadata = meta
	}
	if tx.CartID != nil {
		cartID := *tx.CartID
		dup.CartID = &cartID
	}
	if tx.ProviderFee != nil {
		fee := *tx.ProviderFee
		dup.ProviderFee = &fee
	}
	if tx.ProcessedAt != nil {
		at := *tx.ProcessedAt
		dup.ProcessedAt = &at
	}
	return &dup
}

// Catalog is an in-memory CatalogGateway stub with settable stock levels.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.ProductInfo
}

var _ ports.CatalogGateway = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]domain.ProductInfo)}
}

func catalogKey(productID, variantID string) string { return productID + "|" + variantID }

// SetProduct registers or replaces a product entry.
func (c *Catalog) SetProduct(info domain.ProductInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[catalogKey(info.ProductID, info.VariantID)] = info
}

func (c *Catalog) GetProduct(_ context.Context, productID, variantID string) (*domain.ProductInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.products[catalogKey(productID, variantID)]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &info, nil
}
