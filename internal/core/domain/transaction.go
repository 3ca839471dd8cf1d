package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is our own type for statuses to avoid "magic strings".
// Provider-specific status vocabularies are normalized into this enum at the
// gateway adapter boundary and never leak past it.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSucceeded  TransactionStatus = "succeeded"
	StatusFailed     TransactionStatus = "failed"
	StatusRefunded   TransactionStatus = "refunded"
)

// legalTransitions is the full transition graph. Anything not listed here is
// illegal: failed and refunded are terminal, and succeeded can only move to
// refunded.
var legalTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusSucceeded, StatusFailed},
	StatusSucceeded:  {StatusRefunded},
}

// CanTransition reports whether moving from one status to another is a legal
// forward move. A same-status "move" is not a transition; callers treat it as
// a duplicate delivery.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is a single payment attempt. Amount is immutable after
// creation and status only moves forward along the transition graph.
type Transaction struct {
	ID             uuid.UUID
	OwnerID        string
	CartID         *uuid.UUID // weak reference: may outlive the cart
	Provider       string
	Amount         decimal.Decimal
	Currency       string
	Status         TransactionStatus
	ExternalRef    string // provider-assigned, set at most once
	CheckoutURL    string
	Description    string
	Reference      string
	IdempotencyKey string
	Metadata       map[string]any
	ProviderFee    *decimal.Decimal
	ErrorMessage   string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Refundable reports whether a refund may be attempted.
func (t *Transaction) Refundable() bool {
	return t.Status == StatusSucceeded
}

// SetExternalRef records the provider reference, but never overwrites an
// already assigned one.
func (t *Transaction) SetExternalRef(ref string) {
	if t.ExternalRef == "" && ref != "" {
		t.ExternalRef = ref
	}
}

// MergeMetadata copies the given keys into the transaction metadata,
// allocating the map on first use.
func (t *Transaction) MergeMetadata(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		t.Metadata[k] = v
	}
}

// CheckoutSession is what the payment gateway hands back after a successful
// checkout creation.
type CheckoutSession struct {
	CheckoutURL string
	ExternalRef string
	Raw         map[string]any // full provider response, kept for audit
}

// ProviderStatus is the normalized result of a pull-based status query.
type ProviderStatus struct {
	Status TransactionStatus
	Fee    *decimal.Decimal
	Raw    map[string]any
}

// ProviderEvent is a normalized webhook callback. TxRef carries our own
// transaction id when the provider echoes it back; ExternalRef is the
// provider-side reference.
type ProviderEvent struct {
	TxRef       string
	ExternalRef string
	Status      TransactionStatus
	Fee         *decimal.Decimal
	Raw         map[string]any
}

// TransactionEvent is published to the message broker whenever a transaction
// is created or changes status.
type TransactionEvent struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	OwnerID       string            `json:"owner_id"`
	Provider      string            `json:"provider"`
	Status        TransactionStatus `json:"status"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// PaymentMethod is a stored provider token a user can pay with. It is a
// convenience lookup, not part of the transaction state machine.
type PaymentMethod struct {
	ID         uuid.UUID
	OwnerID    string
	Provider   string
	MethodType string
	Name       string
	Token      string // opaque provider token
	IsDefault  bool
	CreatedAt  time.Time
}
