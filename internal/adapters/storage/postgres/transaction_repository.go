package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
)

// TransactionRepository is the PostgreSQL implementation of the
// TransactionRepository port. Inserts are idempotent on the idempotency key
// and the external reference column is write-once at the SQL level.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	metadata, err := json.Marshal(orEmptyMeta(tx.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	const sql = `
		INSERT INTO transactions
		    (id, owner_id, cart_id, provider, amount, currency, status,
		     external_ref, checkout_url, description, reference, idempotency_key,
		     metadata, error_message, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, sql,
		tx.ID, tx.OwnerID, tx.CartID, tx.Provider, tx.Amount.String(), tx.Currency, tx.Status,
		tx.ExternalRef, tx.CheckoutURL, tx.Description, tx.Reference, tx.IdempotencyKey,
		metadata, tx.ErrorMessage, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdempotencyKeyUsed
	}
	return nil
}

const selectTransaction = `
	SELECT id, owner_id, cart_id, provider, amount::text, currency, status,
	       external_ref, checkout_url, description, reference, idempotency_key,
	       metadata, provider_fee::text, error_message, created_at, processed_at
	FROM transactions
`

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, selectTransaction+` WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, selectTransaction+` WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

func (r *TransactionRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, selectTransaction+` WHERE external_ref = $1 AND external_ref <> ''`, ref)
	return scanTransaction(row)
}

func (r *TransactionRepository) ListByOwner(ctx context.Context, ownerID string, status domain.TransactionStatus) ([]domain.Transaction, error) {
	sql := selectTransaction + ` WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		sql += ` AND status = $2`
		args = append(args, status)
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

// Update persists mutable transaction fields. COALESCE/NULLIF keeps the
// external reference write-once even if a caller regresses in memory.
func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	metadata, err := json.Marshal(orEmptyMeta(tx.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	var fee *string
	if tx.ProviderFee != nil {
		s := tx.ProviderFee.String()
		fee = &s
	}

	const sql = `
		UPDATE transactions SET
		    status = $2,
		    external_ref = COALESCE(NULLIF(external_ref, ''), $3),
		    checkout_url = $4,
		    metadata = $5,
		    provider_fee = COALESCE($6::numeric, provider_fee),
		    error_message = $7,
		    processed_at = COALESCE(processed_at, $8)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, sql,
		tx.ID, tx.Status, tx.ExternalRef, tx.CheckoutURL, metadata, fee, tx.ErrorMessage, tx.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx       domain.Transaction
		amount   string
		fee      *string
		metadata []byte
	)
	err := row.Scan(&tx.ID, &tx.OwnerID, &tx.CartID, &tx.Provider, &amount, &tx.Currency, &tx.Status,
		&tx.ExternalRef, &tx.CheckoutURL, &tx.Description, &tx.Reference, &tx.IdempotencyKey,
		&metadata, &fee, &tx.ErrorMessage, &tx.CreatedAt, &tx.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount: %w", err)
	}
	if fee != nil {
		parsed, err := decimal.NewFromString(*fee)
		if err != nil {
			return nil, fmt.Errorf("invalid stored provider fee: %w", err)
		}
		tx.ProviderFee = &parsed
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("invalid stored metadata: %w", err)
		}
	}
	return &tx, nil
}

func orEmptyMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
