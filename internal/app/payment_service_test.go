package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/legennd48/bazary/internal/adapters/storage/memory"
	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
)

// Mock implementation of the payment gateway port.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "chapa" }

func (m *MockGateway) CreateCheckout(ctx context.Context, tx *domain.Transaction) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, txRef string) (*domain.ProviderStatus, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderStatus), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, txRef string, amount decimal.Decimal) (*domain.ProviderStatus, error) {
	args := m.Called(ctx, txRef, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderStatus), args.Error(1)
}

func (m *MockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	args := m.Called(body, signature)
	return args.Bool(0)
}

func (m *MockGateway) ParseWebhookEvent(body []byte) (*domain.ProviderEvent, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderEvent), args.Error(1)
}

// fakeCheckoutStore hands out a fixed cart snapshot and counts lock calls.
type fakeCheckoutStore struct {
	cart      *domain.Cart
	snapErr   error
	lockCalls atomic.Int32
}

func (f *fakeCheckoutStore) SnapshotForCheckout(_ context.Context, ownerID string, cartID uuid.UUID) (*domain.Cart, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	if f.cart == nil || f.cart.ID != cartID || f.cart.OwnerID != ownerID {
		return nil, domain.ErrCartNotFound
	}
	return f.cart, nil
}

func (f *fakeCheckoutStore) Lock(_ context.Context, _ uuid.UUID) error {
	f.lockCalls.Add(1)
	return nil
}

var _ ports.CheckoutCartStore = (*fakeCheckoutStore)(nil)

type paymentFixture struct {
	service *paymentService
	repo    *memory.TransactionRepository
	gateway *MockGateway
	store   *fakeCheckoutStore
}

func newPaymentFixture(store *fakeCheckoutStore) *paymentFixture {
	repo := memory.NewTransactionRepository()
	gateway := new(MockGateway)
	service := NewPaymentService(
		repo,
		store,
		map[string]ports.PaymentGateway{"chapa": gateway},
		nil, // no broker in unit tests; publish is nil-safe
		time.Second,
		testLogger(),
	)
	return &paymentFixture{service: service, repo: repo, gateway: gateway, store: store}
}

func checkoutCart(ownerID string) *domain.Cart {
	cart := domain.NewCart(ownerID, "ETB")
	cart.Items = []domain.CartItem{
		{ID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("10.00"), Currency: "ETB"},
	}
	cart.Subtotal = decimal.RequireFromString("20.00")
	cart.Total = decimal.RequireFromString("24.60")
	return cart
}

func TestPaymentService_Initiate_FromCart(t *testing.T) {
	// --- Arrange ---
	cart := checkoutCart("user-1")
	f := newPaymentFixture(&fakeCheckoutStore{cart: cart})
	ctx := context.Background()

	f.gateway.On("CreateCheckout", mock.Anything, mock.AnythingOfType("*domain.Transaction")).
		Return(&domain.CheckoutSession{
			CheckoutURL: "https://checkout.chapa.co/abc",
			ExternalRef: "chapa-ref-1",
		}, nil)

	// --- Act ---
	tx, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa",
		CartID:   &cart.ID,
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, tx.Status)
	assert.True(t, tx.Amount.Equal(cart.Total), "amount snapshots the cart total")
	assert.Equal(t, "ETB", tx.Currency)
	assert.Equal(t, "https://checkout.chapa.co/abc", tx.CheckoutURL)
	assert.Equal(t, "chapa-ref-1", tx.ExternalRef)
	assert.Equal(t, tx.ID.String(), tx.IdempotencyKey, "transaction id doubles as idempotency key")

	stored, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	f.gateway.AssertExpectations(t)
}

func TestPaymentService_Initiate_UnknownProvider(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})

	_, err := f.service.Initiate(context.Background(), "user-1", ports.InitiateInput{Provider: "stripe"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestPaymentService_Initiate_EmptyCartCreatesNoTransaction(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{snapErr: domain.ErrEmptyCart})
	cartID := uuid.New()

	_, err := f.service.Initiate(context.Background(), "user-1", ports.InitiateInput{
		Provider: "chapa",
		CartID:   &cartID,
	})

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	txs, repoErr := f.repo.ListByOwner(context.Background(), "user-1", "")
	require.NoError(t, repoErr)
	assert.Empty(t, txs, "a rejected initiation leaves no transaction behind")
	f.gateway.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestPaymentService_Initiate_ExplicitAmountValidation(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	ctx := context.Background()

	negative := decimal.RequireFromString("-5.00")
	_, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{Provider: "chapa", Amount: &negative, Currency: "ETB"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	amount := decimal.RequireFromString("5.00")
	_, err = f.service.Initiate(ctx, "user-1", ports.InitiateInput{Provider: "chapa", Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	_, err = f.service.Initiate(ctx, "user-1", ports.InitiateInput{Provider: "chapa"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPaymentService_Initiate_IdempotencyKeyReturnsExisting(t *testing.T) {
	// --- Arrange ---
	f := newPaymentFixture(&fakeCheckoutStore{})
	ctx := context.Background()
	amount := decimal.RequireFromString("10.00")

	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(&domain.CheckoutSession{CheckoutURL: "https://checkout.chapa.co/x"}, nil).Once()

	first, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa", Amount: &amount, Currency: "ETB", IdempotencyKey: "order-42",
	})
	require.NoError(t, err)

	// --- Act ---
	second, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa", Amount: &amount, Currency: "ETB", IdempotencyKey: "order-42",
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "retry returns the existing transaction")
	f.gateway.AssertNumberOfCalls(t, "CreateCheckout", 1)
}

func TestPaymentService_Initiate_ResumesStuckPendingTransaction(t *testing.T) {
	// --- Arrange ---
	f := newPaymentFixture(&fakeCheckoutStore{})
	ctx := context.Background()

	// A crash between persist and the provider call leaves a pending record;
	// retrying with the same idempotency key must finish the checkout.
	stuck := &domain.Transaction{
		ID:             uuid.New(),
		OwnerID:        "user-1",
		Provider:       "chapa",
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "ETB",
		Status:         domain.StatusPending,
		IdempotencyKey: "order-42",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.repo.Create(ctx, stuck))

	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(&domain.CheckoutSession{CheckoutURL: "https://checkout.chapa.co/x"}, nil).Once()

	// --- Act ---
	amount := decimal.RequireFromString("10.00")
	tx, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa", Amount: &amount, Currency: "ETB", IdempotencyKey: "order-42",
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, stuck.ID, tx.ID, "the retry resumes the stuck transaction, not a new one")
	assert.Equal(t, domain.StatusProcessing, tx.Status)
	assert.Equal(t, "https://checkout.chapa.co/x", tx.CheckoutURL)

	stored, repoErr := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	f.gateway.AssertNumberOfCalls(t, "CreateCheckout", 1)
}

func TestPaymentService_Initiate_RetryableFailureStaysProcessing(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	ctx := context.Background()
	amount := decimal.RequireFromString("10.00")

	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(nil, &domain.ProviderError{Provider: "chapa", Code: "PROVIDER_UNREACHABLE", Retryable: true})

	tx, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa", Amount: &amount, Currency: "ETB",
	})

	require.Error(t, err)
	require.NotNil(t, tx)
	// Provider state is unknown, so the transaction waits for reconciliation.
	stored, repoErr := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
}

func TestPaymentService_Initiate_TerminalFailureMovesToFailed(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	ctx := context.Background()
	amount := decimal.RequireFromString("10.00")

	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(nil, &domain.ProviderError{Provider: "chapa", Code: "INITIALIZATION_FAILED", Message: "invalid currency"})

	tx, err := f.service.Initiate(ctx, "user-1", ports.InitiateInput{
		Provider: "chapa", Amount: &amount, Currency: "ETB",
	})

	require.Error(t, err)
	require.NotNil(t, tx)
	stored, repoErr := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, repoErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func initiateProcessing(t *testing.T, f *paymentFixture, cart *domain.Cart) *domain.Transaction {
	t.Helper()
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(&domain.CheckoutSession{CheckoutURL: "https://checkout.chapa.co/x"}, nil).Once()

	in := ports.InitiateInput{Provider: "chapa"}
	if cart != nil {
		in.CartID = &cart.ID
	} else {
		amount := decimal.RequireFromString("10.00")
		in.Amount = &amount
		in.Currency = "ETB"
	}
	tx, err := f.service.Initiate(context.Background(), "user-1", in)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, tx.Status)
	return tx
}

func TestPaymentService_Verify_AppliesProviderStatus(t *testing.T) {
	// --- Arrange ---
	cart := checkoutCart("user-1")
	f := newPaymentFixture(&fakeCheckoutStore{cart: cart})
	tx := initiateProcessing(t, f, cart)
	ctx := context.Background()

	fee := decimal.RequireFromString("0.71")
	f.gateway.On("QueryStatus", mock.Anything, tx.ID.String()).
		Return(&domain.ProviderStatus{Status: domain.StatusSucceeded, Fee: &fee}, nil)

	// --- Act ---
	verified, err := f.service.Verify(ctx, "user-1", tx.ID.String())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, verified.Status)
	require.NotNil(t, verified.ProviderFee)
	assert.True(t, verified.ProviderFee.Equal(fee))
	assert.NotNil(t, verified.ProcessedAt)
	assert.Equal(t, int32(1), f.store.lockCalls.Load(), "success locks the cart")
}

func TestPaymentService_Verify_StalePendingDoesNotClobberSuccess(t *testing.T) {
	// --- Arrange ---
	cart := checkoutCart("user-1")
	f := newPaymentFixture(&fakeCheckoutStore{cart: cart})
	tx := initiateProcessing(t, f, cart)
	ctx := context.Background()

	f.gateway.On("QueryStatus", mock.Anything, tx.ID.String()).
		Return(&domain.ProviderStatus{Status: domain.StatusSucceeded}, nil).Once()
	_, err := f.service.Verify(ctx, "user-1", tx.ID.String())
	require.NoError(t, err)

	// --- Act ---
	// A stale read now reports processing; the terminal state must survive.
	f.gateway.On("QueryStatus", mock.Anything, tx.ID.String()).
		Return(&domain.ProviderStatus{Status: domain.StatusProcessing}, nil).Once()
	verified, err := f.service.Verify(ctx, "user-1", tx.ID.String())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, verified.Status)
	assert.Equal(t, int32(1), f.store.lockCalls.Load(), "the cart lock fires exactly once")
}

func TestPaymentService_Verify_ScopedToOwner(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	tx := initiateProcessing(t, f, nil)

	_, err := f.service.Verify(context.Background(), "someone-else", tx.ID.String())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.service.Verify(context.Background(), "user-1", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestPaymentService_ApplyProviderEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	// --- Arrange ---
	cart := checkoutCart("user-1")
	f := newPaymentFixture(&fakeCheckoutStore{cart: cart})
	tx := initiateProcessing(t, f, cart)
	ctx := context.Background()

	event := &domain.ProviderEvent{
		TxRef:       tx.ID.String(),
		ExternalRef: "chapa-ref-9",
		Status:      domain.StatusSucceeded,
	}

	// --- Act ---
	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", event))
	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", event))

	// --- Assert ---
	stored, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
	assert.Equal(t, "chapa-ref-9", stored.ExternalRef)
	assert.Equal(t, int32(1), f.store.lockCalls.Load(), "redelivery must not re-lock the cart")
}

func TestPaymentService_ApplyProviderEvent_UnknownTransactionIgnored(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})

	err := f.service.ApplyProviderEvent(context.Background(), "chapa", &domain.ProviderEvent{
		TxRef:  uuid.New().String(),
		Status: domain.StatusSucceeded,
	})

	// Unknown transactions are accepted so the provider stops retrying.
	assert.NoError(t, err)
}

func TestPaymentService_ApplyProviderEvent_LookupByExternalRef(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	tx := initiateProcessing(t, f, nil)
	ctx := context.Background()

	// Attach the external ref through a first event, then deliver a second
	// event carrying only the provider-side reference.
	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", &domain.ProviderEvent{
		TxRef:       tx.ID.String(),
		ExternalRef: "chapa-ext-1",
		Status:      domain.StatusProcessing,
	}))
	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", &domain.ProviderEvent{
		ExternalRef: "chapa-ext-1",
		Status:      domain.StatusSucceeded,
	}))

	stored, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
}

func TestPaymentService_Refund(t *testing.T) {
	// --- Arrange ---
	cart := checkoutCart("user-1")
	f := newPaymentFixture(&fakeCheckoutStore{cart: cart})
	tx := initiateProcessing(t, f, cart)
	ctx := context.Background()

	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", &domain.ProviderEvent{
		TxRef:  tx.ID.String(),
		Status: domain.StatusSucceeded,
	}))

	f.gateway.On("Refund", mock.Anything, tx.ID.String(), mock.Anything).
		Return(&domain.ProviderStatus{Status: domain.StatusRefunded}, nil)

	// --- Act ---
	refunded, err := f.service.Refund(ctx, "user-1", tx.ID, nil, "customer request")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	f.gateway.AssertCalled(t, "Refund", mock.Anything, tx.ID.String(), mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(tx.Amount)
	}))
}

func TestPaymentService_Refund_OnlySucceededIsRefundable(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	tx := initiateProcessing(t, f, nil)

	_, err := f.service.Refund(context.Background(), "user-1", tx.ID, nil, "")
	assert.ErrorIs(t, err, domain.ErrNotRefundable)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Refund_AmountBounds(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	tx := initiateProcessing(t, f, nil)
	ctx := context.Background()

	require.NoError(t, f.service.ApplyProviderEvent(ctx, "chapa", &domain.ProviderEvent{
		TxRef:  tx.ID.String(),
		Status: domain.StatusSucceeded,
	}))

	over := tx.Amount.Add(decimal.New(1, 0))
	_, err := f.service.Refund(ctx, "user-1", tx.ID, &over, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	zero := decimal.Zero
	_, err = f.service.Refund(ctx, "user-1", tx.ID, &zero, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPaymentService_GetAndList_OwnerScoped(t *testing.T) {
	f := newPaymentFixture(&fakeCheckoutStore{})
	tx := initiateProcessing(t, f, nil)
	ctx := context.Background()

	got, err := f.service.Get(ctx, "user-1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = f.service.Get(ctx, "someone-else", tx.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	list, err := f.service.List(ctx, "user-1", domain.StatusProcessing)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.service.List(ctx, "user-1", domain.StatusFailed)
	require.NoError(t, err)
	assert.Empty(t, list)
}
