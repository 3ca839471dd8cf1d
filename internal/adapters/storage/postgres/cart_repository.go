package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/legennd48/bazary/internal/core/domain"
)

const pgUniqueViolation = "23505"

// CartRepository is the PostgreSQL implementation of the CartRepository
// port. Items are rewritten wholesale on Update; carts are small and the
// service layer already serializes mutations per cart.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

const selectCart = `
	SELECT id, owner_id, status, currency,
	       subtotal::text, tax_amount::text, shipping_amount::text, discount_amount::text, total::text,
	       created_at, updated_at
	FROM carts
`

func (r *CartRepository) GetActiveByOwner(ctx context.Context, ownerID string) (*domain.Cart, error) {
	row := r.pool.QueryRow(ctx, selectCart+` WHERE owner_id = $1 AND status = 'active'`, ownerID)
	return r.scanCart(ctx, row)
}

func (r *CartRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	row := r.pool.QueryRow(ctx, selectCart+` WHERE id = $1`, id)
	return r.scanCart(ctx, row)
}

func (r *CartRepository) scanCart(ctx context.Context, row pgx.Row) (*domain.Cart, error) {
	var (
		cart                                     domain.Cart
		subtotal, tax, shipping, discount, total string
	)
	err := row.Scan(&cart.ID, &cart.OwnerID, &cart.Status, &cart.Currency,
		&subtotal, &tax, &shipping, &discount, &total,
		&cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("invalid stored subtotal: %w", err)
	}
	if cart.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return nil, fmt.Errorf("invalid stored tax: %w", err)
	}
	if cart.ShippingAmount, err = decimal.NewFromString(shipping); err != nil {
		return nil, fmt.Errorf("invalid stored shipping: %w", err)
	}
	if cart.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("invalid stored discount: %w", err)
	}
	if cart.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid stored total: %w", err)
	}

	if err := r.loadItems(ctx, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *CartRepository) loadItems(ctx context.Context, cart *domain.Cart) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, cart_id, product_id, variant_id, quantity, unit_price::text, currency,
		       custom_attributes, notes, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`, cart.ID)
	if err != nil {
		return fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  domain.CartItem
			price string
			attrs []byte
		)
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.VariantID,
			&item.Quantity, &price, &item.Currency, &attrs, &item.Notes, &item.AddedAt); err != nil {
			return fmt.Errorf("failed to scan cart item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("invalid stored unit price: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &item.CustomAttributes); err != nil {
				return fmt.Errorf("invalid stored custom attributes: %w", err)
			}
		}
		cart.Items = append(cart.Items, item)
	}
	return rows.Err()
}

func (r *CartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	const sql = `
		INSERT INTO carts
		    (id, owner_id, status, currency, subtotal, tax_amount, shipping_amount, discount_amount, total, created_at, updated_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, sql,
		cart.ID, cart.OwnerID, cart.Status, cart.Currency,
		cart.Subtotal.String(), cart.TaxAmount.String(), cart.ShippingAmount.String(),
		cart.DiscountAmount.String(), cart.Total.String(),
		cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrActiveCartExists
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (r *CartRepository) Update(ctx context.Context, cart *domain.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cart update: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE carts SET
		    status = $2, currency = $3,
		    subtotal = $4, tax_amount = $5, shipping_amount = $6, discount_amount = $7, total = $8,
		    updated_at = $9
		WHERE id = $1`,
		cart.ID, cart.Status, cart.Currency,
		cart.Subtotal.String(), cart.TaxAmount.String(), cart.ShippingAmount.String(),
		cart.DiscountAmount.String(), cart.Total.String(),
		cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	for _, item := range cart.Items {
		attrs, err := json.Marshal(orEmptyAttrs(item.CustomAttributes))
		if err != nil {
			return fmt.Errorf("failed to encode custom attributes: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO cart_items
			    (id, cart_id, product_id, variant_id, quantity, unit_price, currency, custom_attributes, notes, added_at)
			VALUES
			    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, cart.ID, item.ProductID, item.VariantID, item.Quantity,
			item.UnitPrice.String(), item.Currency, attrs, item.Notes, item.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cart item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *CartRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.CartStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE carts SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set cart status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func orEmptyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
