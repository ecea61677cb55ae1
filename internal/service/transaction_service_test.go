package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain"
)

func TestAddTransaction_InThenOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ali := f.userActor("u1")

	_, err := f.svc.AddTransaction(ctx, ali, NewTransaction{
		ProductID: "p1", WarehouseID: "w1", UserID: "u1", Type: domain.TransactionIn, Quantity: 20,
	}, "123")
	require.NoError(t, err)
	out, err := f.svc.AddTransaction(ctx, ali, NewTransaction{
		ProductID: "p1", WarehouseID: "w1", UserID: "u1", Type: domain.TransactionOut, Quantity: 5,
		Description: "  shipped ",
	}, "123")
	require.NoError(t, err)

	assert.EqualValues(t, 15, stockOf(f.svc, "p1", "w1"))
	assert.EqualValues(t, 0, stockOf(f.svc, "p1", "w2"))
	assert.Equal(t, "shipped", out.Description)
	assert.NotEmpty(t, out.ID)

	stored, err := f.repos.Transactions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestAddTransaction_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.post(t, domain.TransactionIn, "p1", "w1", 15)

	_, err := f.svc.AddTransaction(context.Background(), admin, NewTransaction{
		ProductID: "p1", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionOut, Quantity: 100,
	}, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.EqualValues(t, 15, stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 1)
}

func TestAddTransaction_RejectsStockOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, domain.TransactionIn, "p1", "w1", math.MaxInt64)

	for _, tc := range []struct {
		name      string
		product   string
		warehouse string
	}{
		{"same warehouse", "p1", "w1"},
		{"other warehouse", "p1", "w2"},
		{"other product", "p2", "w1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddTransaction(ctx, admin, NewTransaction{
				ProductID: tc.product, WarehouseID: tc.warehouse, UserID: domain.AdminID,
				Type: domain.TransactionIn, Quantity: 1,
			}, adminSecret)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.EqualValues(t, int64(math.MaxInt64), stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 1)

	f.post(t, domain.TransactionOut, "p1", "w1", 1)
	f.post(t, domain.TransactionIn, "p1", "w1", 1)
	assert.EqualValues(t, int64(math.MaxInt64), stockOf(f.svc, "p1", "w1"))
}

func TestAddTransaction_OutDrainsExactly(t *testing.T) {
	f := newFixture(t)
	f.post(t, domain.TransactionIn, "p1", "w2", 7)
	f.post(t, domain.TransactionOut, "p1", "w2", 7)
	assert.Zero(t, stockOf(f.svc, "p1", "w2"))
}

func TestAddTransaction_Rejections(t *testing.T) {
	f := newFixture(t)
	ali := f.userActor("u1")
	valid := NewTransaction{ProductID: "p1", WarehouseID: "w1", UserID: "u1", Type: domain.TransactionIn, Quantity: 1}

	cases := []struct {
		name   string
		actor  domain.Actor
		mutate func(*NewTransaction)
		secret string
		want   error
	}{
		{"zero quantity", ali, func(n *NewTransaction) { n.Quantity = 0 }, "123", domain.ErrInvalidInput},
		{"negative quantity", ali, func(n *NewTransaction) { n.Quantity = -3 }, "123", domain.ErrInvalidInput},
		{"unknown type", ali, func(n *NewTransaction) { n.Type = "MOVE" }, "123", domain.ErrInvalidInput},
		{"delete marker", ali, func(n *NewTransaction) { n.Type = domain.TransactionDelete }, "123", domain.ErrInvalidInput},
		{"missing product", ali, func(n *NewTransaction) { n.ProductID = " " }, "123", domain.ErrInvalidInput},
		{"anonymous", domain.Actor{}, func(*NewTransaction) {}, "123", domain.ErrAuthentication},
		{"wrong password", ali, func(*NewTransaction) {}, "999", domain.ErrAuthentication},
		{"posting as another user", ali, func(n *NewTransaction) { n.UserID = "u2" }, "123", domain.ErrAuthorization},
		{"admin wrong secret", admin, func(*NewTransaction) {}, "nope", domain.ErrAuthentication},
		{"unknown product", ali, func(n *NewTransaction) { n.ProductID = "p9" }, "123", domain.ErrNotFound},
		{"unknown warehouse", ali, func(n *NewTransaction) { n.WarehouseID = "w9" }, "123", domain.ErrNotFound},
		{"admin for unknown user", admin, func(n *NewTransaction) { n.UserID = "u9" }, adminSecret, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.svc.AddTransaction(context.Background(), tc.actor, in, tc.secret)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.svc.Transactions(TransactionFilter{}))
}

func TestAddTransaction_AdminOnBehalfOfUser(t *testing.T) {
	f := newFixture(t)
	tx, err := f.svc.AddTransaction(context.Background(), admin, NewTransaction{
		ProductID: "p1", WarehouseID: "w1", UserID: "u2", Type: domain.TransactionIn, Quantity: 3,
	}, adminSecret)
	require.NoError(t, err)
	assert.Equal(t, "u2", tx.UserID)
}

func TestAddTransaction_DeletedProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DeleteProduct(context.Background(), admin, "p2", adminSecret)
	require.NoError(t, err)

	_, err = f.svc.AddTransaction(context.Background(), admin, NewTransaction{
		ProductID: "p2", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionIn, Quantity: 1,
	}, adminSecret)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddTransaction_ConcurrentOutflows(t *testing.T) {
	f := newFixture(t)
	f.post(t, domain.TransactionIn, "p1", "w1", 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddTransaction(context.Background(), admin, NewTransaction{
				ProductID: "p1", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionOut, Quantity: 6,
			}, adminSecret)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, rejected)
	assert.EqualValues(t, 4, stockOf(f.svc, "p1", "w1"))
}

func TestAddTransaction_PersistenceFailureLeavesState(t *testing.T) {
	f := newFixture(t)
	f.post(t, domain.TransactionIn, "p1", "w1", 10)
	f.svc.repos.Transactions = failingTransactions{TransactionRepository: f.repos.Transactions, err: errors.New("disk full")}

	_, err := f.svc.AddTransaction(context.Background(), admin, NewTransaction{
		ProductID: "p1", WarehouseID: "w1", UserID: domain.AdminID, Type: domain.TransactionOut, Quantity: 4,
	}, adminSecret)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.EqualValues(t, 10, stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 1)

	last := f.hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
}

func TestDeleteTransaction_Reverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.post(t, domain.TransactionIn, "p1", "w1", 20)
	out := f.post(t, domain.TransactionOut, "p1", "w1", 5)

	rev, err := f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, domain.TransactionIn, rev.Type)
	assert.Equal(t, out.ID, rev.ReversesID)
	assert.EqualValues(t, 20, stockOf(f.svc, "p1", "w1"))

	_, err = f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "already reversed")
	_, err = f.svc.DeleteTransaction(ctx, admin, rev.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "reversal of a reversal")

	f.post(t, domain.TransactionOut, "p1", "w1", 15)
	_, err = f.svc.DeleteTransaction(ctx, admin, in.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 4)
}

func TestDeleteTransaction_RejectsMarkersAndDeletedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.post(t, domain.TransactionIn, "p2", "w1", 2)
	entries, err := f.svc.DeleteProduct(ctx, admin, "p2", adminSecret)
	require.NoError(t, err)
	marker := entries[len(entries)-1]

	_, err = f.svc.DeleteTransaction(ctx, admin, marker.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.DeleteTransaction(ctx, admin, in.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteTransaction_AccessAndLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.post(t, domain.TransactionIn, "p1", "w1", 2)

	_, err := f.svc.DeleteTransaction(ctx, f.userActor("u1"), in.ID, "123")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = f.svc.DeleteTransaction(ctx, admin, in.ID, "bad")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	_, err = f.svc.DeleteTransaction(ctx, admin, "missing", adminSecret)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.DeleteTransaction(ctx, admin, "", adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteTransaction_Hard(t *testing.T) {
	f := newFixture(t, WithDeleteMode(DeleteHard))
	ctx := context.Background()
	f.post(t, domain.TransactionIn, "p1", "w1", 20)
	out := f.post(t, domain.TransactionOut, "p1", "w1", 5)

	rev, err := f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	require.NoError(t, err)
	assert.Nil(t, rev)
	assert.EqualValues(t, 20, stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 1)

	stored, err := f.repos.Transactions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["transaction_id"] == out.ID {
			warned = true
		}
	}
	assert.True(t, warned, "hard delete must leave a warning")

	_, err = f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTransaction_ReverseRejectsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, domain.TransactionIn, "p1", "w1", 10)
	out := f.post(t, domain.TransactionOut, "p1", "w1", 10)
	f.post(t, domain.TransactionIn, "p1", "w1", math.MaxInt64-5)

	_, err := f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.EqualValues(t, int64(math.MaxInt64-5), stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 3)
}

func TestDeleteTransaction_HardKeepsStockNonNegative(t *testing.T) {
	f := newFixture(t, WithDeleteMode(DeleteHard))
	ctx := context.Background()
	in := f.post(t, domain.TransactionIn, "p1", "w1", 10)
	f.post(t, domain.TransactionOut, "p1", "w1", 10)

	_, err := f.svc.DeleteTransaction(ctx, admin, in.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Zero(t, stockOf(f.svc, "p1", "w1"))

	stored, err := f.repos.Transactions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 2)
}

func TestDeleteTransaction_HardRejectsOverflow(t *testing.T) {
	f := newFixture(t, WithDeleteMode(DeleteHard))
	ctx := context.Background()
	f.post(t, domain.TransactionIn, "p1", "w1", 10)
	out := f.post(t, domain.TransactionOut, "p1", "w1", 10)
	f.post(t, domain.TransactionIn, "p1", "w1", math.MaxInt64)

	_, err := f.svc.DeleteTransaction(ctx, admin, out.ID, adminSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.EqualValues(t, int64(math.MaxInt64), stockOf(f.svc, "p1", "w1"))
	assert.Len(t, f.svc.Transactions(TransactionFilter{}), 3)
}
