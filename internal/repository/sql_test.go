package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func seedRefs(t *testing.T, ctx context.Context, repos Repositories) {
	t.Helper()
	require.NoError(t, repos.Warehouses.Create(ctx, &domain.Warehouse{ID: "w1", Name: "Central"}))
	require.NoError(t, repos.Warehouses.Create(ctx, &domain.Warehouse{ID: "w2", Name: "Backup"}))
	require.NoError(t, repos.Products.Create(ctx, &domain.Product{ID: "p1", Name: "Laptop"}))
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	assert.NoError(t, s.Migrate())
}

func TestSQLStore_ProductsAndUsers(t *testing.T) {
	ctx := context.Background()
	repos := openSQLite(t).Repositories()
	seedRefs(t, ctx, repos)

	p := domain.Product{Name: "Mouse"}
	require.NoError(t, repos.Products.Create(ctx, &p))
	require.NotEmpty(t, p.ID)

	p.IsDeleted = true
	require.NoError(t, repos.Products.Update(ctx, &p))

	products, err := repos.Products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, got := range products {
		if got.ID == p.ID {
			assert.True(t, got.IsDeleted)
		}
	}

	u := domain.User{ID: "u1", Name: "Ali", Password: "123"}
	require.NoError(t, repos.Users.Create(ctx, &u))
	u.Name = "Ali R."
	require.NoError(t, repos.Users.Update(ctx, &u))
	users, err := repos.Users.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.User{u}, users)

	err = repos.Users.Update(ctx, &domain.User{ID: "ghost", Name: "x", Password: "y"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLStore_TransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := openSQLite(t).Repositories()
	seedRefs(t, ctx, repos)

	ts := time.Date(2025, 1, 1, 9, 0, 0, 123, time.UTC)
	in := domain.Transaction{
		ProductID: "p1", WarehouseID: "w1", UserID: "u1",
		Type: domain.TransactionIn, Quantity: 20, Timestamp: ts, Description: "initial",
	}
	require.NoError(t, repos.Transactions.Create(ctx, &in))

	batch := []domain.Transaction{
		{ProductID: "p1", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionOut, Quantity: 20, Timestamp: ts.Add(time.Second), ReversesID: in.ID},
		{ProductID: "p1", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionDelete, Timestamp: ts.Add(2 * time.Second)},
	}
	require.NoError(t, repos.Transactions.CreateBatch(ctx, batch))

	list, err := repos.Transactions.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, in, list[0])
	assert.Equal(t, batch[0], list[1])
	assert.Equal(t, domain.TransactionDelete, list[2].Type)
	assert.Empty(t, list[2].ReversesID)

	require.NoError(t, repos.Transactions.Delete(ctx, in.ID))
	assert.ErrorIs(t, repos.Transactions.Delete(ctx, in.ID), ErrNotFound)
}

func TestSQLStore_WithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	repos := openSQLite(t).Repositories()
	seedRefs(t, ctx, repos)

	err := repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repos.Transactions.CreateBatch(ctx, []domain.Transaction{
			{ProductID: "p1", WarehouseID: "w1", UserID: "admin", Type: domain.TransactionOut, Quantity: 1, Timestamp: time.Now()},
		}); err != nil {
			return err
		}
		return repos.Products.Update(ctx, &domain.Product{ID: "ghost", Name: "x"})
	})
	require.ErrorIs(t, err, ErrNotFound)

	list, err := repos.Transactions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL("postgres", "x")
	assert.Error(t, err)
}
