package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
	"github.com/legennd48/bazary/internal/observability"
)

// paymentService is the transaction orchestrator: it owns the state machine
// and is the single entry point for both pull-based verification and
// webhook-driven reconciliation. Transitions on one transaction are
// serialized through a per-transaction keyed mutex.
type paymentService struct {
	transactions    ports.TransactionRepository
	carts           ports.CheckoutCartStore
	gateways        map[string]ports.PaymentGateway
	events          ports.EventPublisher
	locks           *keyedMutex
	logger          *slog.Logger
	providerTimeout time.Duration
}

// NewPaymentService wires the orchestrator. Gateways are keyed by provider
// name; events may be nil-safe via a no-op publisher in callers that do not
// run a broker.
func NewPaymentService(
	transactions ports.TransactionRepository,
	carts ports.CheckoutCartStore,
	gateways map[string]ports.PaymentGateway,
	events ports.EventPublisher,
	providerTimeout time.Duration,
	logger *slog.Logger,
) *paymentService {
	return &paymentService{
		transactions:    transactions,
		carts:           carts,
		gateways:        gateways,
		events:          events,
		locks:           newKeyedMutex(),
		logger:          logger,
		providerTimeout: providerTimeout,
	}
}

var _ ports.PaymentService = (*paymentService)(nil)

func txLockKey(id uuid.UUID) string { return "tx:" + id.String() }

// Initiate creates a transaction in pending, persists it before the provider
// is contacted, then moves it to processing and asks the provider for a
// checkout session. Retrying with the same idempotency key returns the
// existing transaction instead of creating a duplicate provider charge.
func (s *paymentService) Initiate(ctx context.Context, ownerID string, in ports.InitiateInput) (*domain.Transaction, error) {
	gateway, ok := s.gateways[in.Provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	if in.IdempotencyKey != "" {
		existing, err := s.transactions.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			return s.resumeIfPending(ctx, existing)
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}

	amount, currency, cartID, err := s.resolveAmount(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		CartID:         cartID,
		Provider:       in.Provider,
		Amount:         amount,
		Currency:       currency,
		Status:         domain.StatusPending,
		Description:    in.Description,
		Reference:      in.Reference,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       in.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if tx.IdempotencyKey == "" {
		tx.IdempotencyKey = tx.ID.String()
	}

	// Persist before contacting the provider so a crash between persist and
	// provider call leaves an inspectable pending record.
	if err := s.transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyUsed) {
			existing, getErr := s.transactions.GetByIdempotencyKey(ctx, tx.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			return s.resumeIfPending(ctx, existing)
		}
		return nil, err
	}
	s.publish(ctx, tx)

	return s.createCheckout(ctx, gateway, tx)
}

// createCheckout moves the transaction to processing and asks the provider
// for a session. The transaction id is the provider idempotency key, so a
// repeated call for the same transaction cannot charge twice.
func (s *paymentService) createCheckout(ctx context.Context, gateway ports.PaymentGateway, tx *domain.Transaction) (*domain.Transaction, error) {
	tx.Status = domain.StatusProcessing
	observability.CountTransactionTransition(tx.Provider, string(tx.Status))

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	session, gwErr := gateway.CreateCheckout(callCtx, tx)

	switch {
	case gwErr == nil:
		tx.CheckoutURL = session.CheckoutURL
		tx.SetExternalRef(session.ExternalRef)
		tx.MergeMetadata(map[string]any{"provider_response": session.Raw})
	case retryable(gwErr):
		// Provider-side state is unknown: stay in processing and let verify
		// or a webhook reconcile later.
		s.logger.Warn("checkout creation did not complete, awaiting reconciliation",
			"transaction_id", tx.ID, "provider", tx.Provider, "error", gwErr)
	default:
		tx.Status = domain.StatusFailed
		tx.ErrorMessage = gwErr.Error()
		observability.CountTransactionTransition(tx.Provider, string(tx.Status))
	}

	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, err
	}
	s.publish(ctx, tx)

	if gwErr != nil {
		return tx, gwErr
	}
	return tx, nil
}

// resumeIfPending finishes an initiation that persisted the transaction but
// never reached the provider (a crash or lost connection between persist and
// checkout creation leaves the record in pending). Anything past pending has
// already been handed to the provider and is returned as is.
func (s *paymentService) resumeIfPending(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx.Status != domain.StatusPending {
		return tx, nil
	}
	gateway, ok := s.gateways[tx.Provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	s.locks.Lock(txLockKey(tx.ID))
	defer s.locks.Unlock(txLockKey(tx.ID))

	// Re-read under the lock: a concurrent retry may have advanced it.
	tx, err := s.transactions.GetByID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.StatusPending {
		return tx, nil
	}

	s.logger.Info("resuming checkout for pending transaction",
		"transaction_id", tx.ID, "provider", tx.Provider)
	return s.createCheckout(ctx, gateway, tx)
}

func (s *paymentService) resolveAmount(ctx context.Context, ownerID string, in ports.InitiateInput) (decimal.Decimal, string, *uuid.UUID, error) {
	if in.CartID != nil {
		cart, err := s.carts.SnapshotForCheckout(ctx, ownerID, *in.CartID)
		if err != nil {
			return decimal.Zero, "", nil, err
		}
		return cart.Total, cart.Currency, in.CartID, nil
	}

	if in.Amount == nil || !in.Amount.IsPositive() {
		return decimal.Zero, "", nil, domain.ErrInvalidAmount
	}
	if in.Currency == "" {
		return decimal.Zero, "", nil, domain.ErrCurrencyMismatch
	}
	return *in.Amount, in.Currency, nil, nil
}

// Verify is the pull-based reconciliation path: it queries the provider and
// applies the result through the same legal-transition gate the webhook path
// uses, so a stale "pending" answer can never clobber a delivered success.
func (s *paymentService) Verify(ctx context.Context, ownerID string, txRef string) (*domain.Transaction, error) {
	id, err := uuid.Parse(txRef)
	if err != nil {
		return nil, domain.ErrTransactionNotFound
	}

	s.locks.Lock(txLockKey(id))
	defer s.locks.Unlock(txLockKey(id))

	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && tx.OwnerID != ownerID {
		return nil, domain.ErrTransactionNotFound
	}

	gateway, ok := s.gateways[tx.Provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	status, err := gateway.QueryStatus(callCtx, txRef)
	if err != nil {
		return nil, err
	}

	if err := s.applyTransition(ctx, tx, status.Status, status.Fee, map[string]any{"verification_result": status.Raw}); err != nil {
		return nil, err
	}
	return tx, nil
}

// ApplyProviderEvent is the webhook entry point. It shares applyTransition
// with Verify, so redelivery of an already applied event is a no-op and an
// out-of-order event is silently ignored. A missing transaction is benign:
// the provider retries on non-2xx, so we log and accept.
func (s *paymentService) ApplyProviderEvent(ctx context.Context, provider string, event *domain.ProviderEvent) error {
	tx, err := s.lookupForEvent(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			s.logger.Warn("webhook for unknown transaction, ignoring",
				"provider", provider, "tx_ref", event.TxRef, "external_ref", event.ExternalRef)
			return nil
		}
		return err
	}

	s.locks.Lock(txLockKey(tx.ID))
	defer s.locks.Unlock(txLockKey(tx.ID))

	// Re-read under the lock: a concurrent verify may have advanced it.
	tx, err = s.transactions.GetByID(ctx, tx.ID)
	if err != nil {
		return err
	}

	// Persist a newly attached external ref even when the status itself is a
	// duplicate or out of order, so later events can be matched by it.
	if tx.ExternalRef == "" && event.ExternalRef != "" {
		tx.SetExternalRef(event.ExternalRef)
		if err := s.transactions.Update(ctx, tx); err != nil {
			return err
		}
	}
	return s.applyTransition(ctx, tx, event.Status, event.Fee, map[string]any{"webhook_event": event.Raw})
}

func (s *paymentService) lookupForEvent(ctx context.Context, event *domain.ProviderEvent) (*domain.Transaction, error) {
	if id, err := uuid.Parse(event.TxRef); err == nil {
		if tx, err := s.transactions.GetByID(ctx, id); err == nil {
			return tx, nil
		} else if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}
	if event.ExternalRef != "" {
		return s.transactions.GetByExternalRef(ctx, event.ExternalRef)
	}
	return nil, domain.ErrTransactionNotFound
}

// applyTransition applies a normalized provider status to the transaction.
// Callers hold the transaction lock (or the transaction is not yet visible
// to anyone else, as in Initiate). The monotonic check is what makes the
// succeeded side effect fire at most once: only the single legal transition
// into succeeded locks the cart.
func (s *paymentService) applyTransition(ctx context.Context, tx *domain.Transaction, target domain.TransactionStatus, fee *decimal.Decimal, audit map[string]any) error {
	if tx.Status == target {
		// Duplicate delivery: same end state, no side effects.
		return nil
	}
	if !domain.CanTransition(tx.Status, target) {
		s.logger.Warn("ignoring stale or out-of-order status",
			"transaction_id", tx.ID, "current", tx.Status, "reported", target)
		return nil
	}

	tx.Status = target
	tx.MergeMetadata(audit)
	if fee != nil {
		tx.ProviderFee = fee
	}
	if target == domain.StatusSucceeded {
		now := time.Now().UTC()
		tx.ProcessedAt = &now
	}

	if err := s.transactions.Update(ctx, tx); err != nil {
		return err
	}
	observability.CountTransactionTransition(tx.Provider, string(target))

	if target == domain.StatusSucceeded && tx.CartID != nil {
		if err := s.carts.Lock(ctx, *tx.CartID); err != nil {
			// The payment is settled; a cart that failed to lock is a
			// cleanup problem, not a reason to fail the transition.
			s.logger.Error("failed to lock cart after successful payment",
				"transaction_id", tx.ID, "cart_id", *tx.CartID, "error", err)
		}
	}

	s.publish(ctx, tx)
	return nil
}

// Refund moves a succeeded transaction to refunded. Unlike the webhook and
// verify paths, an illegal starting state is a caller error here.
func (s *paymentService) Refund(ctx context.Context, ownerID string, txID uuid.UUID, amount *decimal.Decimal, reason string) (*domain.Transaction, error) {
	s.locks.Lock(txLockKey(txID))
	defer s.locks.Unlock(txLockKey(txID))

	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && tx.OwnerID != ownerID {
		return nil, domain.ErrTransactionNotFound
	}
	if !tx.Refundable() {
		return nil, domain.ErrNotRefundable
	}

	refundAmount := tx.Amount
	if amount != nil {
		if !amount.IsPositive() || amount.GreaterThan(tx.Amount) {
			return nil, domain.ErrInvalidAmount
		}
		refundAmount = *amount
	}

	gateway, ok := s.gateways[tx.Provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	ack, err := gateway.Refund(callCtx, tx.ID.String(), refundAmount)
	if err != nil {
		return nil, err
	}

	tx.MergeMetadata(map[string]any{
		"refund": map[string]any{
			"amount": refundAmount.String(),
			"reason": reason,
		},
		"refund_response": ack.Raw,
	})
	if err := s.applyTransition(ctx, tx, domain.StatusRefunded, nil, nil); err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a transaction scoped to its owner.
func (s *paymentService) Get(ctx context.Context, ownerID string, txID uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && tx.OwnerID != ownerID {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

// List returns the owner's transactions, optionally filtered by status.
func (s *paymentService) List(ctx context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error) {
	return s.transactions.ListByOwner(ctx, ownerID, status)
}

func (s *paymentService) publish(ctx context.Context, tx *domain.Transaction) {
	if s.events == nil {
		return
	}
	event := domain.TransactionEvent{
		TransactionID: tx.ID,
		OwnerID:       tx.OwnerID,
		Provider:      tx.Provider,
		Status:        tx.Status,
		Amount:        tx.Amount.String(),
		Currency:      tx.Currency,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.events.PublishTransactionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish transaction event",
			"transaction_id", tx.ID, "status", tx.Status, "error", err)
	}
}

// retryable reports whether a gateway error leaves the provider-side state
// unknown, so the transaction must stay in processing.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pErr *domain.ProviderError
	return errors.As(err, &pErr) && pErr.Retryable
}
