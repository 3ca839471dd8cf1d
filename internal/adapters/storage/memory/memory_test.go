package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legennd48/bazary/internal/core/domain"
)

func TestCartRepository_OneActivePerOwner(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	first := domain.NewCart("user-1", "ETB")
	require.NoError(t, repo.Create(ctx, first))

	second := domain.NewCart("user-1", "ETB")
	assert.ErrorIs(t, repo.Create(ctx, second), domain.ErrActiveCartExists)

	// Once the first cart leaves active, a new one may be created.
	require.NoError(t, repo.SetStatus(ctx, first.ID, domain.CartStatusLocked))
	assert.NoError(t, repo.Create(ctx, second))
}

func TestCartRepository_CopiesOnReturn(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	cart := domain.NewCart("user-1", "ETB")
	cart.Items = []domain.CartItem{{ID: uuid.New(), ProductID: "prod-1", Quantity: 1}}
	require.NoError(t, repo.Create(ctx, cart))

	fetched, err := repo.GetByID(ctx, cart.ID)
	require.NoError(t, err)
	fetched.Items[0].Quantity = 99

	again, err := repo.GetByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity, "mutating a returned cart must not touch the store")
}

func TestTransactionRepository_IdempotencyKeyConflict(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()

	tx := &domain.Transaction{ID: uuid.New(), OwnerID: "user-1", IdempotencyKey: "key-1"}
	require.NoError(t, repo.Create(ctx, tx))

	dup := &domain.Transaction{ID: uuid.New(), OwnerID: "user-1", IdempotencyKey: "key-1"}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrIdempotencyKeyUsed)

	found, err := repo.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, found.ID)
}

func TestTransactionRepository_ExternalRefWriteOnce(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()

	tx := &domain.Transaction{ID: uuid.New(), IdempotencyKey: "key-1", ExternalRef: "ref-1"}
	require.NoError(t, repo.Create(ctx, tx))

	tx.ExternalRef = "ref-2"
	require.NoError(t, repo.Update(ctx, tx))

	stored, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", stored.ExternalRef)

	byRef, err := repo.GetByExternalRef(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byRef.ID)

	_, err = repo.GetByExternalRef(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestTransactionRepository_ListByOwnerFilters(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Transaction{
		ID: uuid.New(), OwnerID: "user-1", IdempotencyKey: "a", Status: domain.StatusSucceeded,
	}))
	require.NoError(t, repo.Create(ctx, &domain.Transaction{
		ID: uuid.New(), OwnerID: "user-1", IdempotencyKey: "b", Status: domain.StatusFailed,
	}))
	require.NoError(t, repo.Create(ctx, &domain.Transaction{
		ID: uuid.New(), OwnerID: "user-2", IdempotencyKey: "c", Status: domain.StatusSucceeded,
	}))

	all, err := repo.ListByOwner(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	succeeded, err := repo.ListByOwner(ctx, "user-1", domain.StatusSucceeded)
	require.NoError(t, err)
	assert.Len(t, succeeded, 1)
}
