package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T) PricingPolicy {
	t.Helper()
	policy, err := NewPricingPolicy("0.08", "3.00", "100.00", "ETB", 2)
	require.NoError(t, err)
	return policy
}

func TestCartItem_MergeKey_AttributeOrderIndependent(t *testing.T) {
	a := CartItem{
		ProductID:        "prod-1",
		VariantID:        "var-1",
		CustomAttributes: map[string]string{"color": "red", "size": "M"},
	}
	b := CartItem{
		ProductID:        "prod-1",
		VariantID:        "var-1",
		CustomAttributes: map[string]string{"size": "M", "color": "red"},
	}

	assert.Equal(t, a.MergeKey(), b.MergeKey())
}

func TestCartItem_MergeKey_DistinguishesVariantsAndAttributes(t *testing.T) {
	base := CartItem{ProductID: "prod-1"}
	withVariant := CartItem{ProductID: "prod-1", VariantID: "var-1"}
	withAttrs := CartItem{ProductID: "prod-1", CustomAttributes: map[string]string{"engraving": "hi"}}

	assert.NotEqual(t, base.MergeKey(), withVariant.MergeKey())
	assert.NotEqual(t, base.MergeKey(), withAttrs.MergeKey())
	assert.NotEqual(t, withVariant.MergeKey(), withAttrs.MergeKey())
}

func TestCartItem_MergeKey_SeparatorCharactersInValues(t *testing.T) {
	// A value containing separator-looking characters must not read as two
	// attributes, and vice versa.
	folded := CartItem{
		ProductID:        "prod-1",
		CustomAttributes: map[string]string{"x": "1|y=2"},
	}
	split := CartItem{
		ProductID:        "prod-1",
		CustomAttributes: map[string]string{"x": "1", "y": "2"},
	}
	keyInValue := CartItem{
		ProductID:        "prod-1",
		CustomAttributes: map[string]string{"x=1": "y=2"},
	}

	assert.NotEqual(t, folded.MergeKey(), split.MergeKey())
	assert.NotEqual(t, folded.MergeKey(), keyInValue.MergeKey())
	assert.NotEqual(t, split.MergeKey(), keyInValue.MergeKey())
}

func TestCartItem_MergeKey_SeparatorInVariantID(t *testing.T) {
	a := CartItem{ProductID: "prod-1", VariantID: "var|x=1"}
	b := CartItem{ProductID: "prod-1", VariantID: "var", CustomAttributes: map[string]string{"x": "1"}}

	assert.NotEqual(t, a.MergeKey(), b.MergeKey())
}

func TestCart_Recalculate_Totals(t *testing.T) {
	policy := testPolicy(t)
	cart := NewCart("user-1", "ETB")
	cart.Items = []CartItem{
		{ID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}

	cart.Recalculate(policy)

	assert.True(t, cart.Subtotal.Equal(decimal.RequireFromString("25.50")), "subtotal %s", cart.Subtotal)
	assert.True(t, cart.TaxAmount.Equal(decimal.RequireFromString("2.04")), "tax %s", cart.TaxAmount)
	assert.True(t, cart.ShippingAmount.Equal(decimal.RequireFromString("3.00")), "shipping %s", cart.ShippingAmount)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("30.54")), "total %s", cart.Total)
}

func TestCart_Recalculate_EmptyCartShipsNothing(t *testing.T) {
	policy := testPolicy(t)
	cart := NewCart("user-1", "ETB")

	cart.Recalculate(policy)

	assert.True(t, cart.Subtotal.IsZero())
	assert.True(t, cart.TaxAmount.IsZero())
	assert.True(t, cart.ShippingAmount.IsZero())
	assert.True(t, cart.Total.IsZero())
}

func TestCart_Recalculate_FreeShippingThreshold(t *testing.T) {
	policy := testPolicy(t)
	cart := NewCart("user-1", "ETB")
	cart.Items = []CartItem{
		{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("100.00")},
	}

	cart.Recalculate(policy)

	assert.True(t, cart.ShippingAmount.IsZero(), "orders at the threshold ship free, got %s", cart.ShippingAmount)
}

func TestCart_RemoveItem(t *testing.T) {
	cart := NewCart("user-1", "ETB")
	itemID := uuid.New()
	cart.Items = []CartItem{{ID: itemID, Quantity: 1, UnitPrice: decimal.New(1, 0)}}

	assert.True(t, cart.RemoveItem(itemID))
	assert.True(t, cart.IsEmpty())
	assert.False(t, cart.RemoveItem(itemID), "removing an absent item reports false")
}

func TestCart_QuantityForKey(t *testing.T) {
	cart := NewCart("user-1", "ETB")
	item := CartItem{ID: uuid.New(), ProductID: "prod-1", Quantity: 3, UnitPrice: decimal.New(1, 0)}
	cart.Items = []CartItem{item}

	assert.Equal(t, 3, cart.QuantityForKey(item.MergeKey()))
	assert.Equal(t, 0, cart.QuantityForKey(CartItem{ProductID: "other"}.MergeKey()))
}

func TestCart_Summary(t *testing.T) {
	policy := testPolicy(t)
	cart := NewCart("user-1", "ETB")
	cart.Items = []CartItem{
		{ID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
	}
	cart.Recalculate(policy)

	summary := cart.Summary()

	assert.Equal(t, cart.ID, summary.CartID)
	assert.Equal(t, 2, summary.ItemCount)
	assert.True(t, summary.Total.Equal(cart.Total))
}
