// Package catalog implements the CatalogGateway port against the product
// catalog's read-only HTTP API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// HTTPGateway looks products up over HTTP:
// GET {base}/products/{id}?variant={variantID}.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
}

var _ ports.CatalogGateway = (*HTTPGateway)(nil)

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type productResponse struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	Active         bool   `json:"active"`
	AvailableStock int    `json:"available_stock"`
}

// GetProduct resolves the current price, currency, activity and stock.
func (g *HTTPGateway) GetProduct(ctx context.Context, productID, variantID string) (*domain.ProductInfo, error) {
	endpoint := g.baseURL + "/products/" + url.PathEscape(productID)
	if variantID != "" {
		endpoint += "?variant=" + url.QueryEscape(variantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return nil, fmt.Errorf("catalog returned invalid price %q: %w", body.Price, err)
	}

	return &domain.ProductInfo{
		ProductID:      body.ProductID,
		VariantID:      body.VariantID,
		Price:          price,
		Currency:       body.Currency,
		Active:         body.Active,
		AvailableStock: body.AvailableStock,
	}, nil
}
