package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legennd48/bazary/internal/core/domain"
)

// PaymentMethodRepository stores saved payment methods. The partial unique
// index on (owner_id) WHERE is_default keeps a single default per owner;
// SetDefault clears the old flag and sets the new one in one transaction.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

func (r *PaymentMethodRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, provider, method_type, name, token, is_default, created_at
		FROM payment_methods WHERE owner_id = $1
		ORDER BY is_default DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var result []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Provider, &m.MethodType, &m.Name, &m.Token, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *PaymentMethodRepository) Create(ctx context.Context, m *domain.PaymentMethod) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin payment method insert: %w", err)
	}
	defer tx.Rollback(ctx)

	if m.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = FALSE WHERE owner_id = $1 AND is_default`, m.OwnerID); err != nil {
			return fmt.Errorf("failed to clear default payment method: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_methods (id, owner_id, provider, method_type, name, token, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.OwnerID, m.Provider, m.MethodType, m.Name, m.Token, m.IsDefault, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment method: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PaymentMethodRepository) SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin default update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = FALSE WHERE owner_id = $1 AND is_default`, ownerID); err != nil {
		return fmt.Errorf("failed to clear default payment method: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = TRUE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to set default payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMethodNotFound
	}

	return tx.Commit(ctx)
}
