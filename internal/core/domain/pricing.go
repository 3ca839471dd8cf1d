package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingPolicy holds the externally configured inputs of the totals
// algorithm. Tax rate and shipping tiers come from config, not from the
// catalog, so the same cart always produces the same totals.
type PricingPolicy struct {
	TaxRate          decimal.Decimal
	ShippingFlat     decimal.Decimal
	FreeShippingOver decimal.Decimal // zero disables the free tier
	CurrencyDecimals int32
	DefaultCurrency  string
}

// NewPricingPolicy parses the decimal config strings once at startup so the
// hot path never re-parses them.
func NewPricingPolicy(taxRate, shippingFlat, freeShippingOver, defaultCurrency string, currencyDecimals int32) (PricingPolicy, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	flat, err := decimal.NewFromString(shippingFlat)
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("invalid shipping flat %q: %w", shippingFlat, err)
	}
	free := decimal.Zero
	if freeShippingOver != "" {
		free, err = decimal.NewFromString(freeShippingOver)
		if err != nil {
			return PricingPolicy{}, fmt.Errorf("invalid free shipping threshold %q: %w", freeShippingOver, err)
		}
	}
	return PricingPolicy{
		TaxRate:          rate,
		ShippingFlat:     flat,
		FreeShippingOver: free,
		CurrencyDecimals: currencyDecimals,
		DefaultCurrency:  defaultCurrency,
	}, nil
}

// Shipping applies the flat-or-free policy. An empty cart ships nothing.
func (p PricingPolicy) Shipping(subtotal decimal.Decimal, itemCount int) decimal.Decimal {
	if itemCount == 0 {
		return decimal.Zero
	}
	if p.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingOver) {
		return decimal.Zero
	}
	return p.ShippingFlat
}

// Recalculate recomputes the cart totals from its items. The running
// subtotal is never rounded; rounding happens only when the tax is derived,
// at the currency's minor-unit precision.
func (c *Cart) Recalculate(p PricingPolicy) {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	c.Subtotal = subtotal
	c.TaxAmount = subtotal.Mul(p.TaxRate).Round(p.CurrencyDecimals)
	c.ShippingAmount = p.Shipping(subtotal, c.ItemCount())
	// Discounts are a hook only: nothing in core scope populates them.
	if c.DiscountAmount.IsZero() {
		c.DiscountAmount = decimal.Zero
	}
	c.Total = c.Subtotal.Add(c.TaxAmount).Add(c.ShippingAmount).Sub(c.DiscountAmount)
}
