package service

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

// NewTransaction движение, заявленное пользователем; ID и время назначает сервис
type NewTransaction struct {
	ProductID   string
	WarehouseID string
	UserID      string
	Type        domain.TransactionType
	Quantity    int64
	Description string
}

// AddTransaction records an IN or OUT movement. password is the admin secret for
// admin sessions and the declared user's own password otherwise.
func (s *InventoryService) AddTransaction(ctx context.Context, actor domain.Actor, in NewTransaction, password string) (out *domain.Transaction, err error) {
	defer s.observe("add_transaction", actor, &err)

	if err := validateNewTransaction(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeTransaction(actor, in.UserID, password, s.findActiveUser); err != nil {
		return nil, err
	}
	if s.activeProductIndex(in.ProductID) < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "product %q not found", in.ProductID)
	}
	if !s.hasWarehouse(in.WarehouseID) {
		return nil, domain.Errorf(domain.KindNotFound, "warehouse %q not found", in.WarehouseID)
	}
	if in.UserID != domain.AdminID && s.activeUserIndex(in.UserID) < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "user %q not found", in.UserID)
	}
	if err := s.checkBalanceLocked(in.Type, in.ProductID, in.WarehouseID, in.Quantity); err != nil {
		return nil, err
	}

	t := domain.Transaction{
		ID:          uuid.NewString(),
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		UserID:      in.UserID,
		Type:        in.Type,
		Quantity:    in.Quantity,
		Timestamp:   s.clock.Next(),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repos.Transactions.Create(ctx, &t); err != nil {
		return nil, storeErr("record transaction", err)
	}
	s.transactions = append(s.transactions, t)
	s.version++

	s.log.WithFields(logrus.Fields{
		"actor": actor.ID, "transaction_id": t.ID, "product_id": t.ProductID,
		"warehouse_id": t.WarehouseID, "type": t.Type, "quantity": t.Quantity,
	}).Info("transaction recorded")
	return &t, nil
}

func validateNewTransaction(in NewTransaction) error {
	if err := requireField("product id", in.ProductID); err != nil {
		return err
	}
	if err := requireField("warehouse id", in.WarehouseID); err != nil {
		return err
	}
	if err := requireField("user id", in.UserID); err != nil {
		return err
	}
	switch in.Type {
	case domain.TransactionIn, domain.TransactionOut:
	case domain.TransactionDelete:
		return domain.Errorf(domain.KindInvalidInput, "deletion markers are recorded only by product deletion")
	default:
		return domain.Errorf(domain.KindInvalidInput, "transaction type must be IN or OUT")
	}
	if in.Quantity <= 0 {
		return domain.Errorf(domain.KindInvalidInput, "quantity must be a positive integer")
	}
	return nil
}

// checkBalanceLocked checks that applying a movement of typ keeps every
// balance within [0, MaxInt64].
func (s *InventoryService) checkBalanceLocked(typ domain.TransactionType, productID, warehouseID string, qty int64) error {
	switch typ {
	case domain.TransactionOut:
		return s.checkStockLocked(productID, warehouseID, qty)
	case domain.TransactionIn:
		return s.checkCapacityLocked(productID, warehouseID, qty)
	}
	return nil
}

// checkStockLocked rejects an outflow larger than the current derived stock.
func (s *InventoryService) checkStockLocked(productID, warehouseID string, qty int64) error {
	if have := ledger.StockOf(s.viewLocked(), productID, warehouseID); qty > have {
		return domain.Errorf(domain.KindInsufficientStock,
			"insufficient stock: %d requested, %d available in warehouse %s", qty, have, warehouseID)
	}
	return nil
}

// checkCapacityLocked rejects an inflow that would overflow the product,
// warehouse or grand total.
func (s *InventoryService) checkCapacityLocked(productID, warehouseID string, qty int64) error {
	view := s.viewLocked()
	ps := view[productID]
	sums := []int64{ps.Stock[warehouseID], ps.Total}
	totals := ledger.WarehouseTotals(view, s.warehouses)
	for _, t := range totals {
		if t.WarehouseID == warehouseID {
			sums = append(sums, t.Total)
		}
	}
	sums = append(sums, ledger.GrandTotal(totals))
	for _, have := range sums {
		if have > math.MaxInt64-qty {
			return domain.Errorf(domain.KindInvalidInput,
				"quantity %d would exceed the largest stock a warehouse can hold", qty)
		}
	}
	return nil
}

// DeleteTransaction removes a log entry on behalf of the admin. In reverse mode a
// compensating entry is appended and returned; in hard mode the row is deleted
// and the result is nil.
func (s *InventoryService) DeleteTransaction(ctx context.Context, actor domain.Actor, id, adminSecret string) (out *domain.Transaction, err error) {
	defer s.observe("delete_transaction", actor, &err)

	if err := requireField("transaction id", id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	idx := -1
	for i, t := range s.transactions {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "transaction %q not found", id)
	}

	if s.deleteMode == DeleteHard {
		return nil, s.hardDeleteLocked(ctx, actor, idx)
	}
	return s.reverseLocked(ctx, actor, s.transactions[idx])
}

func (s *InventoryService) hardDeleteLocked(ctx context.Context, actor domain.Actor, idx int) error {
	orig := s.transactions[idx]
	// removing an entry must not drive a live balance negative or past MaxInt64
	if s.activeProductIndex(orig.ProductID) >= 0 {
		if err := s.checkBalanceLocked(opposite(orig.Type), orig.ProductID, orig.WarehouseID, orig.Quantity); err != nil {
			return err
		}
	}
	if err := s.repos.Transactions.Delete(ctx, orig.ID); err != nil {
		return storeErr("delete transaction", err)
	}
	s.transactions = append(s.transactions[:idx:idx], s.transactions[idx+1:]...)
	s.version++

	// historical balances change without a trace in the log, keep one here
	s.log.WithFields(logrus.Fields{
		"actor": actor.ID, "transaction_id": orig.ID, "product_id": orig.ProductID,
		"warehouse_id": orig.WarehouseID, "type": orig.Type, "quantity": orig.Quantity,
		"timestamp": orig.Timestamp,
	}).Warn("transaction hard-deleted from ledger")
	return nil
}

func (s *InventoryService) reverseLocked(ctx context.Context, actor domain.Actor, orig domain.Transaction) (*domain.Transaction, error) {
	revType := opposite(orig.Type)
	if revType == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "deletion markers cannot be reversed")
	}
	if orig.ReversesID != "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "transaction %s is itself a reversal", orig.ID)
	}
	for _, t := range s.transactions {
		if t.ReversesID == orig.ID {
			return nil, domain.Errorf(domain.KindInvalidInput, "transaction %s is already reversed by %s", orig.ID, t.ID)
		}
	}
	if s.activeProductIndex(orig.ProductID) < 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "transaction %s belongs to a deleted product", orig.ID)
	}
	if err := s.checkBalanceLocked(revType, orig.ProductID, orig.WarehouseID, orig.Quantity); err != nil {
		return nil, err
	}

	rev := domain.Transaction{
		ID:          uuid.NewString(),
		ProductID:   orig.ProductID,
		WarehouseID: orig.WarehouseID,
		UserID:      actor.ID,
		Type:        revType,
		Quantity:    orig.Quantity,
		Timestamp:   s.clock.Next(),
		Description: "reversal of " + orig.ID,
		ReversesID:  orig.ID,
	}
	if err := s.repos.Transactions.Create(ctx, &rev); err != nil {
		return nil, storeErr("record reversal", err)
	}
	s.transactions = append(s.transactions, rev)
	s.version++

	s.log.WithFields(logrus.Fields{
		"actor": actor.ID, "transaction_id": rev.ID, "reverses": orig.ID,
	}).Info("transaction reversed")
	return &rev, nil
}

// opposite returns the movement that cancels t, or "" for markers.
func opposite(t domain.TransactionType) domain.TransactionType {
	switch t {
	case domain.TransactionIn:
		return domain.TransactionOut
	case domain.TransactionOut:
		return domain.TransactionIn
	}
	return ""
}
