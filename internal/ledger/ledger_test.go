package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain"
)

var (
	testWarehouses = []domain.Warehouse{{ID: "w1", Name: "Central"}, {ID: "w2", Name: "Backup"}}
	testProducts   = []domain.Product{
		{ID: "p1", Name: "Laptop"},
		{ID: "p2", Name: "Mouse"},
		{ID: "p3", Name: "Keyboard", IsDeleted: true},
	}
)

func tx(id, product, warehouse string, typ domain.TransactionType, qty int64) domain.Transaction {
	return domain.Transaction{
		ID: id, ProductID: product, WarehouseID: warehouse, UserID: "u1",
		Type: typ, Quantity: qty, Timestamp: time.Unix(0, 0),
	}
}

func sampleLog() []domain.Transaction {
	return []domain.Transaction{
		tx("t1", "p1", "w1", domain.TransactionIn, 20),
		tx("t2", "p2", "w1", domain.TransactionIn, 100),
		tx("t3", "p2", "w2", domain.TransactionIn, 50),
		tx("t4", "p1", "w1", domain.TransactionOut, 5),
		tx("t5", "p1", "w2", domain.TransactionIn, 7),
		tx("t6", "p2", "w2", domain.TransactionOut, 30),
		tx("t7", "p3", "w1", domain.TransactionIn, 9),
		tx("t8", "p1", "w1", domain.TransactionDelete, 0),
	}
}

func TestDerive_InThenOut(t *testing.T) {
	view := Derive(testProducts, testWarehouses, []domain.Transaction{
		tx("t1", "p1", "w1", domain.TransactionIn, 20),
		tx("t2", "p1", "w1", domain.TransactionOut, 5),
	})

	assert.Equal(t, int64(15), StockOf(view, "p1", "w1"))
	assert.Equal(t, int64(0), StockOf(view, "p1", "w2"))
	assert.Equal(t, int64(15), view["p1"].Total)
	assert.Equal(t, "Laptop", view["p1"].ProductName)
}

func TestDerive_ZeroInitialized(t *testing.T) {
	view := Derive(testProducts, testWarehouses, nil)

	require.Len(t, view, 2)
	for _, ps := range view {
		assert.Equal(t, map[string]int64{"w1": 0, "w2": 0}, ps.Stock)
		assert.Zero(t, ps.Total)
	}
}

func TestDerive_SkipsDeletedProductsAndMarkers(t *testing.T) {
	view := Derive(testProducts, testWarehouses, sampleLog())

	_, ok := view["p3"]
	assert.False(t, ok, "deleted product must not appear")
	assert.Equal(t, int64(15), StockOf(view, "p1", "w1"))
	assert.Equal(t, int64(7), StockOf(view, "p1", "w2"))
	assert.Equal(t, int64(22), view["p1"].Total)
	assert.Equal(t, int64(120), view["p2"].Total)
}

func TestDerive_UnknownWarehouseIgnored(t *testing.T) {
	view := Derive(testProducts, testWarehouses, []domain.Transaction{
		tx("t1", "p1", "w9", domain.TransactionIn, 4),
	})
	assert.Zero(t, view["p1"].Total)
	assert.NotContains(t, view["p1"].Stock, "w9")
}

func TestDerive_BalanceInvariantOnEveryPrefix(t *testing.T) {
	log := sampleLog()
	for n := 0; n <= len(log); n++ {
		view := Derive(testProducts, testWarehouses, log[:n])
		for id, ps := range view {
			var sum int64
			for _, q := range ps.Stock {
				sum += q
			}
			assert.Equalf(t, ps.Total, sum, "prefix %d product %s", n, id)
		}
	}
}

func TestDerive_OrderIndependent(t *testing.T) {
	log := sampleLog()
	want := Derive(testProducts, testWarehouses, log)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.Transaction(nil), log...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Derive(testProducts, testWarehouses, shuffled))
	}
}

func TestDerive_DoesNotMutateInputs(t *testing.T) {
	log := sampleLog()
	before := append([]domain.Transaction(nil), log...)
	products := append([]domain.Product(nil), testProducts...)

	_ = Derive(products, testWarehouses, log)

	assert.Equal(t, before, log)
	assert.Equal(t, testProducts, products)
}

func TestWarehouseTotals(t *testing.T) {
	view := Derive(testProducts, testWarehouses, sampleLog())
	totals := WarehouseTotals(view, testWarehouses)

	require.Len(t, totals, 2)
	assert.Equal(t, domain.WarehouseTotal{WarehouseID: "w1", Name: "Central", Total: 115}, totals[0])
	assert.Equal(t, domain.WarehouseTotal{WarehouseID: "w2", Name: "Backup", Total: 27}, totals[1])
	assert.Equal(t, int64(142), GrandTotal(totals))
}

func TestSorted(t *testing.T) {
	rows := Sorted(Derive(testProducts, testWarehouses, nil))
	require.Len(t, rows, 2)
	assert.Equal(t, "Laptop", rows[0].ProductName)
	assert.Equal(t, "Mouse", rows[1].ProductName)
}
