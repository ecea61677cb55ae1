package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockledger/internal/domain"
)

const (
	writeOffDescription = "product deleted, remaining stock written off"
	deletedDescription  = "product removed from catalogue"
)

// AddProduct adds a product to the catalogue. Admin only.
func (s *InventoryService) AddProduct(ctx context.Context, actor domain.Actor, name, adminSecret string) (out *domain.Product, err error) {
	defer s.observe("add_product", actor, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "product name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	if err := s.uniqueProductName(name, ""); err != nil {
		return nil, err
	}

	p := domain.Product{ID: uuid.NewString(), Name: name}
	if err := s.repos.Products.Create(ctx, &p); err != nil {
		return nil, storeErr("add product", err)
	}
	s.products = append(s.products, p)
	s.version++

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "product_id": p.ID}).Info("product added")
	return &p, nil
}

// UpdateProduct renames a product. Admin only.
func (s *InventoryService) UpdateProduct(ctx context.Context, actor domain.Actor, id, name, adminSecret string) (out *domain.Product, err error) {
	defer s.observe("update_product", actor, &err)

	if err := requireField("product id", id); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "product name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	i := s.activeProductIndex(id)
	if i < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "product %q not found", id)
	}
	if s.products[i].Name == name {
		return nil, domain.Errorf(domain.KindNoChanges, "product name is unchanged")
	}
	if err := s.uniqueProductName(name, id); err != nil {
		return nil, err
	}

	p := s.products[i]
	p.Name = name
	if err := s.repos.Products.Update(ctx, &p); err != nil {
		return nil, storeErr("update product", err)
	}
	s.products[i] = p
	s.version++

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "product_id": p.ID}).Info("product renamed")
	return &p, nil
}

// DeleteProduct writes off the remaining stock of a product, records a DELETE
// marker and soft-deletes the product, all in one store transaction. Admin only.
// It returns the entries appended to the log, marker last.
func (s *InventoryService) DeleteProduct(ctx context.Context, actor domain.Actor, id, adminSecret string) (out []domain.Transaction, err error) {
	defer s.observe("delete_product", actor, &err)

	if err := requireField("product id", id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	i := s.activeProductIndex(id)
	if i < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "product %q not found", id)
	}

	stock := s.viewLocked()[id].Stock
	batch := make([]domain.Transaction, 0, len(s.warehouses)+1)
	for _, w := range s.warehouses {
		if q := stock[w.ID]; q > 0 {
			batch = append(batch, domain.Transaction{
				ID:          uuid.NewString(),
				ProductID:   id,
				WarehouseID: w.ID,
				UserID:      actor.ID,
				Type:        domain.TransactionOut,
				Quantity:    q,
				Timestamp:   s.clock.Next(),
				Description: writeOffDescription,
			})
		}
	}
	// the marker is stamped after every write-off
	batch = append(batch, domain.Transaction{
		ID:          uuid.NewString(),
		ProductID:   id,
		WarehouseID: s.placeholderWarehouse(),
		UserID:      actor.ID,
		Type:        domain.TransactionDelete,
		Quantity:    0,
		Timestamp:   s.clock.Next(),
		Description: deletedDescription,
	})

	deleted := s.products[i]
	deleted.IsDeleted = true
	err = s.repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.repos.Transactions.CreateBatch(ctx, batch); err != nil {
			return err
		}
		return s.repos.Products.Update(ctx, &deleted)
	})
	if err != nil {
		return nil, storeErr("delete product", err)
	}

	s.transactions = append(s.transactions, batch...)
	s.products[i] = deleted
	s.version++

	s.log.WithFields(logrus.Fields{
		"actor": actor.ID, "product_id": id, "write_offs": len(batch) - 1,
	}).Info("product deleted")
	return append([]domain.Transaction(nil), batch...), nil
}

// uniqueProductName rejects a name already used by another active product.
func (s *InventoryService) uniqueProductName(name, selfID string) error {
	for _, p := range s.products {
		if p.IsDeleted || p.ID == selfID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return domain.Errorf(domain.KindDuplicateName, "a product named %q already exists", p.Name)
		}
	}
	return nil
}

// placeholderWarehouse is the warehouse recorded on DELETE markers.
func (s *InventoryService) placeholderWarehouse() string {
	if len(s.warehouses) == 0 {
		return ""
	}
	return s.warehouses[0].ID
}
