package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

type stubGateway struct {
	validSignature bool
	event          *domain.ProviderEvent
	parseErr       error
}

func (g *stubGateway) Name() string { return "chapa" }
func (g *stubGateway) CreateCheckout(context.Context, *domain.Transaction) (*domain.CheckoutSession, error) {
	return nil, nil
}
func (g *stubGateway) QueryStatus(context.Context, string) (*domain.ProviderStatus, error) {
	return nil, nil
}
func (g *stubGateway) Refund(context.Context, string, decimal.Decimal) (*domain.ProviderStatus, error) {
	return nil, nil
}
func (g *stubGateway) VerifyWebhookSignature([]byte, string) bool { return g.validSignature }
func (g *stubGateway) ParseWebhookEvent([]byte) (*domain.ProviderEvent, error) {
	return g.event, g.parseErr
}

var _ ports.PaymentGateway = (*stubGateway)(nil)

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) Initiate(ctx context.Context, ownerID string, in ports.InitiateInput) (*domain.Transaction, error) {
	args := m.Called(ctx, ownerID, in)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockPaymentService) Verify(ctx context.Context, ownerID string, txRef string) (*domain.Transaction, error) {
	args := m.Called(ctx, ownerID, txRef)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockPaymentService) ApplyProviderEvent(ctx context.Context, provider string, event *domain.ProviderEvent) error {
	args := m.Called(ctx, provider, event)
	return args.Error(0)
}

func (m *mockPaymentService) Refund(ctx context.Context, ownerID string, txID uuid.UUID, amount *decimal.Decimal, reason string) (*domain.Transaction, error) {
	args := m.Called(ctx, ownerID, txID, amount, reason)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockPaymentService) Get(ctx context.Context, ownerID string, txID uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, ownerID, txID)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockPaymentService) List(ctx context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error) {
	args := m.Called(ctx, ownerID, status)
	txs, _ := args.Get(0).([]domain.Transaction)
	return txs, args.Error(1)
}

var _ ports.PaymentService = (*mockPaymentService)(nil)

func webhookRouter(service ports.PaymentService, gateway ports.PaymentGateway) http.Handler {
	handler := NewWebhookHandler(service, map[string]ports.PaymentGateway{"chapa": gateway}, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	r.Post("/webhooks/{provider}", handler.HandleWebhook)
	return r
}

func postWebhook(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chapa", bytes.NewBufferString(body))
	req.Header.Set("X-Chapa-Signature", "sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_ValidDeliveryApplied(t *testing.T) {
	event := &domain.ProviderEvent{TxRef: uuid.New().String(), Status: domain.StatusSucceeded}
	service := new(mockPaymentService)
	service.On("ApplyProviderEvent", mock.Anything, "chapa", event).Return(nil)

	rec := postWebhook(t, webhookRouter(service, &stubGateway{validSignature: true, event: event}), `{"status":"success"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestWebhookHandler_InvalidSignatureRejected(t *testing.T) {
	service := new(mockPaymentService)

	rec := postWebhook(t, webhookRouter(service, &stubGateway{validSignature: false}), `{}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	service.AssertNotCalled(t, "ApplyProviderEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_UnparseablePayloadAcknowledged(t *testing.T) {
	service := new(mockPaymentService)
	gateway := &stubGateway{validSignature: true, parseErr: assert.AnError}

	rec := postWebhook(t, webhookRouter(service, gateway), `not json`)

	// Authenticated garbage gets a 200 so the provider stops redelivering.
	assert.Equal(t, http.StatusOK, rec.Code)
	service.AssertNotCalled(t, "ApplyProviderEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_ApplyFailureTriggersRedelivery(t *testing.T) {
	event := &domain.ProviderEvent{TxRef: uuid.New().String(), Status: domain.StatusSucceeded}
	service := new(mockPaymentService)
	service.On("ApplyProviderEvent", mock.Anything, "chapa", event).Return(assert.AnError)

	rec := postWebhook(t, webhookRouter(service, &stubGateway{validSignature: true, event: event}), `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookHandler_UnknownProvider(t *testing.T) {
	service := new(mockPaymentService)
	router := webhookRouter(service, &stubGateway{validSignature: true})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler_AltSignatureHeader(t *testing.T) {
	event := &domain.ProviderEvent{TxRef: uuid.New().String(), Status: domain.StatusFailed}
	service := new(mockPaymentService)
	service.On("ApplyProviderEvent", mock.Anything, "chapa", event).Return(nil)
	router := webhookRouter(service, &stubGateway{validSignature: true, event: event})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chapa", bytes.NewBufferString(`{}`))
	req.Header.Set("Chapa-Signature", "sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}
