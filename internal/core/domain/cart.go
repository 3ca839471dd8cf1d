package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartStatus tracks the cart lifecycle. Only one cart per owner may be
// active at a time.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusLocked    CartStatus = "locked"
	CartStatusAbandoned CartStatus = "abandoned"
)

// Cart is a mutable pre-checkout collection of items owned by one principal.
// Totals are denormalized and recomputed after every mutation.
type Cart struct {
	ID             uuid.UUID
	OwnerID        string
	Status         CartStatus
	Currency       string
	Items          []CartItem
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CartItem is owned by exactly one cart. UnitPrice is a snapshot captured
// from the catalog at add time and is never recomputed implicitly.
type CartItem struct {
	ID               uuid.UUID
	CartID           uuid.UUID
	ProductID        string
	VariantID        string // empty when the product has no variant
	Quantity         int
	UnitPrice        decimal.Decimal
	Currency         string
	CustomAttributes map[string]string
	Notes            string
	AddedAt          time.Time
}

// LineTotal is unit price times quantity, unrounded.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MergeKey identifies an item line for merge-on-add. Two adds with the same
// product, variant and custom attributes increment quantity instead of
// creating a second line. Attribute order does not matter. The parts are
// JSON encoded so separator characters inside attribute values cannot make
// two different combinations produce the same key.
func (i CartItem) MergeKey() string {
	keys := make([]string, 0, len(i.CustomAttributes))
	for k := range i.CustomAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, 2+2*len(keys))
	parts = append(parts, i.ProductID, i.VariantID)
	for _, k := range keys {
		parts = append(parts, k, i.CustomAttributes[k])
	}
	encoded, _ := json.Marshal(parts)
	return string(encoded)
}

// NewCart returns an empty active cart for the owner with zeroed totals.
func NewCart(ownerID, currency string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Status:         CartStatusActive,
		Currency:       currency,
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		ShippingAmount: decimal.Zero,
		DiscountAmount: decimal.Zero,
		Total:          decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ItemCount is the sum of quantities over all items.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItemByKey returns the item matching the merge key, or nil.
func (c *Cart) FindItemByKey(key string) *CartItem {
	for idx := range c.Items {
		if c.Items[idx].MergeKey() == key {
			return &c.Items[idx]
		}
	}
	return nil
}

// FindItem returns the item with the given id, or nil.
func (c *Cart) FindItem(itemID uuid.UUID) *CartItem {
	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			return &c.Items[idx]
		}
	}
	return nil
}

// RemoveItem drops the item with the given id and reports whether it was
// present. Removing an absent item is a no-op.
func (c *Cart) RemoveItem(itemID uuid.UUID) bool {
	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
			return true
		}
	}
	return false
}

// QuantityForKey is the quantity already in the cart for a merge key, used
// for cumulative stock validation.
func (c *Cart) QuantityForKey(key string) int {
	if item := c.FindItemByKey(key); item != nil {
		return item.Quantity
	}
	return 0
}

// CartSummary is the read model returned by the summary operation.
type CartSummary struct {
	CartID    uuid.UUID
	Status    CartStatus
	Currency  string
	ItemCount int
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// Summary builds the summary read model from the stored totals.
func (c *Cart) Summary() CartSummary {
	return CartSummary{
		CartID:    c.ID,
		Status:    c.Status,
		Currency:  c.Currency,
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal,
		Tax:       c.TaxAmount,
		Shipping:  c.ShippingAmount,
		Discount:  c.DiscountAmount,
		Total:     c.Total,
	}
}

// ProductInfo is the catalog gateway read model: price, currency, activity
// and available stock for a product or variant.
type ProductInfo struct {
	ProductID      string
	VariantID      string
	Price          decimal.Decimal
	Currency       string
	Active         bool
	AvailableStock int
}
