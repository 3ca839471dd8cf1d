package app

import (
	"context"
	"time"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// StockValidator is the stock reservation gate. It is validation-only: no
// soft hold is taken, so the same check runs again at transaction initiation
// to bound the race window between cart edit and checkout.
type StockValidator struct {
	catalog ports.CatalogGateway
	timeout time.Duration
}

func NewStockValidator(catalog ports.CatalogGateway, timeout time.Duration) *StockValidator {
	return &StockValidator{catalog: catalog, timeout: timeout}
}

// CheckAvailability confirms the catalog can cover the requested quantity.
// The quantity is cumulative: callers pass existing cart quantity plus the
// increment. Fails with *domain.InsufficientStockError carrying the
// available count.
func (s *StockValidator) CheckAvailability(ctx context.Context, productID, variantID string, requested int) (*domain.ProductInfo, error) {
	if requested < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.catalog.GetProduct(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, domain.ErrProductUnavailable
	}
	if info.AvailableStock < requested {
		return nil, &domain.InsufficientStockError{
			ProductID: productID,
			VariantID: variantID,
			Requested: requested,
			Available: info.AvailableStock,
		}
	}
	return info, nil
}
