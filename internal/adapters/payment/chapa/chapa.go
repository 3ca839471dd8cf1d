// Package chapa implements the PaymentGateway port against the Chapa REST
// API. All provider-shaped data is translated here; nothing past this
// package sees Chapa status strings or payload layouts.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/config"
	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

const (
	defaultBaseURL = "https://api.chapa.co/v1"
	providerName   = "chapa"
)

// chapaStatusMap is the exhaustive translation of Chapa status vocabulary
// into the internal enum. Anything not listed fails closed: an unmapped
// status is an error, never a success.
var chapaStatusMap = map[string]domain.TransactionStatus{
	"created":   domain.StatusProcessing,
	"pending":   domain.StatusProcessing,
	"success":   domain.StatusSucceeded,
	"failed":    domain.StatusFailed,
	"cancelled": domain.StatusFailed,
	"timeout":   domain.StatusFailed,
	"refunded":  domain.StatusRefunded,
	"reversed":  domain.StatusRefunded,
}

// Client talks to one Chapa account.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	secretKey        string
	webhookSecret    string
	callbackURL      string
	returnURL        string
	currencyDecimals int32
	logger           *slog.Logger
}

var _ ports.PaymentGateway = (*Client)(nil)

// NewClient builds the adapter from config. currencyDecimals is the minor
// unit precision amounts are rendered with on the wire; it must match the
// account currency. The HTTP client timeout is the hard upper bound; callers
// usually pass a shorter context deadline.
func NewClient(cfg config.ChapaConfig, currencyDecimals int32, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		secretKey:        cfg.SecretKey,
		webhookSecret:    cfg.WebhookSecret,
		callbackURL:      cfg.CallbackURL,
		returnURL:        cfg.ReturnURL,
		currencyDecimals: currencyDecimals,
		logger:           logger,
	}
}

// formatAmount renders a decimal with the configured minor-unit precision,
// so zero-decimal currencies are not padded to two digits.
func (c *Client) formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(c.currencyDecimals)
}

func (c *Client) Name() string { return providerName }

// apiEnvelope is the common Chapa response wrapper.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateCheckout initializes a hosted checkout session. The transaction id
// travels as tx_ref, which doubles as the provider idempotency key: Chapa
// rejects a second initialization with the same tx_ref instead of charging
// twice.
func (c *Client) CreateCheckout(ctx context.Context, tx *domain.Transaction) (*domain.CheckoutSession, error) {
	payload := map[string]any{
		"amount":       c.formatAmount(tx.Amount),
		"currency":     tx.Currency,
		"tx_ref":       tx.ID.String(),
		"callback_url": c.callbackURL,
		"return_url":   c.returnURL,
		"customization": map[string]string{
			"title":       "Bazary Payment",
			"description": orderDescription(tx),
		},
	}
	if len(tx.Metadata) > 0 {
		payload["meta"] = tx.Metadata
	}

	env, raw, err := c.do(ctx, http.MethodPost, "/transaction/initialize", tx.ID.String(), payload)
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, &domain.ProviderError{
			Provider: providerName,
			Code:     "INITIALIZATION_FAILED",
			Message:  env.Message,
		}
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
		Reference   string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, c.malformed(err)
	}
	return &domain.CheckoutSession{
		CheckoutURL: data.CheckoutURL,
		ExternalRef: data.Reference,
		Raw:         raw,
	}, nil
}

// QueryStatus verifies a transaction by tx_ref and maps the provider status
// through the lookup table.
func (c *Client) QueryStatus(ctx context.Context, txRef string) (*domain.ProviderStatus, error) {
	env, raw, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(txRef), txRef, nil)
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, &domain.ProviderError{
			Provider: providerName,
			Code:     "VERIFICATION_FAILED",
			Message:  env.Message,
		}
	}

	var data struct {
		Status string          `json:"status"`
		Charge json.RawMessage `json:"charge"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, c.malformed(err)
	}

	status, err := c.mapStatus(data.Status)
	if err != nil {
		return nil, err
	}
	return &domain.ProviderStatus{
		Status: status,
		Fee:    parseFee(data.Charge),
		Raw:    raw,
	}, nil
}

// Refund asks Chapa to reverse a settled transaction, fully or partially.
func (c *Client) Refund(ctx context.Context, txRef string, amount decimal.Decimal) (*domain.ProviderStatus, error) {
	payload := map[string]any{
		"amount": c.formatAmount(amount),
	}
	env, raw, err := c.do(ctx, http.MethodPost, "/transaction/refund/"+url.PathEscape(txRef), txRef, payload)
	if err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, &domain.ProviderError{
			Provider: providerName,
			Code:     "REFUND_FAILED",
			Message:  env.Message,
		}
	}
	return &domain.ProviderStatus{Status: domain.StatusRefunded, Raw: raw}, nil
}

// ParseWebhookEvent normalizes a raw Chapa webhook body.
func (c *Client) ParseWebhookEvent(body []byte) (*domain.ProviderEvent, error) {
	var payload struct {
		TxRef     string          `json:"tx_ref"`
		TrxRef    string          `json:"trx_ref"` // older payloads use this key
		RefID     string          `json:"ref_id"`
		Status    string          `json:"status"`
		Charge    json.RawMessage `json:"charge"`
		EventType string          `json:"event"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	txRef := payload.TxRef
	if txRef == "" {
		txRef = payload.TrxRef
	}
	if txRef == "" && payload.RefID == "" {
		return nil, errors.New("webhook payload carries no transaction reference")
	}

	status, err := c.mapStatus(payload.Status)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	return &domain.ProviderEvent{
		TxRef:       txRef,
		ExternalRef: payload.RefID,
		Status:      status,
		Fee:         parseFee(payload.Charge),
		Raw:         raw,
	}, nil
}

func (c *Client) mapStatus(providerStatus string) (domain.TransactionStatus, error) {
	status, ok := chapaStatusMap[strings.ToLower(providerStatus)]
	if !ok {
		return "", &domain.ProviderError{
			Provider: providerName,
			Code:     "UNMAPPED_STATUS",
			Message:  fmt.Sprintf("unmapped provider status %q", providerStatus),
		}
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, idemKey string, payload any) (*apiEnvelope, map[string]any, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idemKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection errors leave provider state unknown.
		c.logger.Warn("chapa request failed", "method", method, "endpoint", endpoint, "error", err)
		return nil, nil, &domain.ProviderError{
			Provider:  providerName,
			Code:      "PROVIDER_UNREACHABLE",
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, c.malformed(err)
	}

	c.logger.Debug("chapa response", "method", method, "endpoint", endpoint, "code", resp.StatusCode)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, &domain.ProviderError{
			Provider:  providerName,
			Code:      fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:   strings.TrimSpace(string(respBody)),
			Retryable: true,
		}
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, nil, c.malformed(err)
	}
	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)
	return &env, raw, nil
}

func (c *Client) malformed(err error) error {
	return &domain.ProviderError{
		Provider: providerName,
		Code:     "MALFORMED_RESPONSE",
		Message:  err.Error(),
	}
}

func orderDescription(tx *domain.Transaction) string {
	if tx.Description != "" {
		return tx.Description
	}
	return "Payment for order " + tx.ID.String()
}

func parseFee(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 {
		return nil
	}
	// Chapa reports the charge either as a number or a quoted string.
	trimmed := strings.Trim(string(raw), `"`)
	fee, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil
	}
	return &fee
}
