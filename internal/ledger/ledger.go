// Package ledger сворачивает журнал движений в остатки по товарам и складам.
// Функции пакета чистые: не выполняют ввод-вывод и не изменяют аргументы.
package ledger

import (
	"sort"

	"stockledger/internal/domain"
)

// Derive строит InventoryView для всех неудалённых товаров.
// Результат не зависит от порядка транзакций.
func Derive(products []domain.Product, warehouses []domain.Warehouse, txs []domain.Transaction) domain.InventoryView {
	view := make(domain.InventoryView, len(products))
	for _, p := range products {
		if p.IsDeleted {
			continue
		}
		stock := make(map[string]int64, len(warehouses))
		for _, w := range warehouses {
			stock[w.ID] = 0
		}
		view[p.ID] = domain.ProductStock{ProductID: p.ID, ProductName: p.Name, Stock: stock}
	}

	for _, tx := range txs {
		var delta int64
		switch tx.Type {
		case domain.TransactionIn:
			delta = tx.Quantity
		case domain.TransactionOut:
			delta = -tx.Quantity
		default:
			// DELETE markers carry no balance
			continue
		}
		ps, ok := view[tx.ProductID]
		if !ok {
			continue
		}
		if _, known := ps.Stock[tx.WarehouseID]; !known {
			continue
		}
		ps.Stock[tx.WarehouseID] += delta
		ps.Total += delta
		view[tx.ProductID] = ps
	}
	return view
}

// StockOf returns the stock of a product in a warehouse, zero when absent.
func StockOf(view domain.InventoryView, productID, warehouseID string) int64 {
	ps, ok := view[productID]
	if !ok {
		return 0
	}
	return ps.Stock[warehouseID]
}

// WarehouseTotals sums stock per warehouse, in the order of warehouses.
func WarehouseTotals(view domain.InventoryView, warehouses []domain.Warehouse) []domain.WarehouseTotal {
	out := make([]domain.WarehouseTotal, 0, len(warehouses))
	for _, w := range warehouses {
		t := domain.WarehouseTotal{WarehouseID: w.ID, Name: w.Name}
		for _, ps := range view {
			t.Total += ps.Stock[w.ID]
		}
		out = append(out, t)
	}
	return out
}

// GrandTotal sums warehouse totals.
func GrandTotal(totals []domain.WarehouseTotal) int64 {
	var sum int64
	for _, t := range totals {
		sum += t.Total
	}
	return sum
}

// Sorted returns the view rows ordered by product name, then id.
func Sorted(view domain.InventoryView) []domain.ProductStock {
	rows := make([]domain.ProductStock, 0, len(view))
	for _, ps := range view {
		rows = append(rows, ps)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductName != rows[j].ProductName {
			return rows[i].ProductName < rows[j].ProductName
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows
}
