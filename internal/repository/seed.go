package repository

import (
	"context"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stockledger/internal/domain"
)

// Seed начальное наполнение хранилища: склады, товары, пользователи, журнал
type Seed struct {
	Warehouses   []domain.Warehouse   `yaml:"warehouses"`
	Products     []domain.Product     `yaml:"products"`
	Users        []domain.User        `yaml:"users"`
	Transactions []domain.Transaction `yaml:"transactions"`
}

// LoadSeed decodes a YAML seed document, rejecting unknown fields.
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Seed
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

type stockKey struct{ product, warehouse string }

// Validate checks the seed against the rules the ledger enforces at runtime:
// references resolve, quantities are positive, and replaying the journal in
// timestamp order never takes a balance below zero or past MaxInt64.
func (s *Seed) Validate() error {
	if len(s.Warehouses) == 0 {
		return errors.New("seed must define at least one warehouse")
	}
	warehouses := make(map[string]bool, len(s.Warehouses))
	for _, w := range s.Warehouses {
		warehouses[w.ID] = true
	}
	products := make(map[string]bool, len(s.Products))
	for _, p := range s.Products {
		products[p.ID] = true
	}
	users := map[string]bool{domain.AdminID: true}
	for _, u := range s.Users {
		users[u.ID] = true
	}

	txs := append([]domain.Transaction(nil), s.Transactions...)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })

	stock := make(map[stockKey]int64)
	removed := make(map[string]bool)
	var total int64
	for _, tx := range txs {
		switch {
		case tx.ID == "":
			return errors.New("seed transaction without id")
		case !products[tx.ProductID]:
			return errors.Errorf("seed transaction %s: unknown product %q", tx.ID, tx.ProductID)
		case !warehouses[tx.WarehouseID]:
			return errors.Errorf("seed transaction %s: unknown warehouse %q", tx.ID, tx.WarehouseID)
		case !users[tx.UserID]:
			return errors.Errorf("seed transaction %s: unknown user %q", tx.ID, tx.UserID)
		}
		if tx.Type == domain.TransactionDelete {
			if tx.Quantity != 0 {
				return errors.Errorf("seed transaction %s: deletion marker must have zero quantity", tx.ID)
			}
			removed[tx.ProductID] = true
			continue
		}
		if removed[tx.ProductID] {
			return errors.Errorf("seed transaction %s: product %s is already deleted", tx.ID, tx.ProductID)
		}
		if tx.Quantity <= 0 {
			return errors.Errorf("seed transaction %s: quantity must be a positive integer", tx.ID)
		}
		k := stockKey{tx.ProductID, tx.WarehouseID}
		switch tx.Type {
		case domain.TransactionIn:
			// every balance is non-negative, so the grand total bounds all of them
			if total > math.MaxInt64-tx.Quantity {
				return errors.Errorf("seed transaction %s: quantity %d overflows stock", tx.ID, tx.Quantity)
			}
			stock[k] += tx.Quantity
			total += tx.Quantity
		case domain.TransactionOut:
			if tx.Quantity > stock[k] {
				return errors.Errorf("seed transaction %s: insufficient stock: %d requested, %d available in warehouse %s",
					tx.ID, tx.Quantity, stock[k], tx.WarehouseID)
			}
			stock[k] -= tx.Quantity
			total -= tx.Quantity
		default:
			return errors.Errorf("seed transaction %s: unknown type %q", tx.ID, tx.Type)
		}
	}
	return nil
}

// LoadSeedFile reads a seed from path.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed")
	}
	defer f.Close()
	return LoadSeed(f)
}

// ApplySeed writes the seed in one transaction when the store has no warehouses yet.
// hash converts seed passwords into their stored form. It reports whether anything was written.
func ApplySeed(ctx context.Context, repos Repositories, seed *Seed, hash func(string) (string, error)) (bool, error) {
	if err := seed.Validate(); err != nil {
		return false, err
	}
	applied := false
	err := repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := repos.Warehouses.List(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for i := range seed.Warehouses {
			w := seed.Warehouses[i]
			if err := repos.Warehouses.Create(ctx, &w); err != nil {
				return err
			}
		}
		for i := range seed.Products {
			p := seed.Products[i]
			if err := repos.Products.Create(ctx, &p); err != nil {
				return err
			}
		}
		for i := range seed.Users {
			u := seed.Users[i]
			pw, err := hash(u.Password)
			if err != nil {
				return err
			}
			u.Password = pw
			if err := repos.Users.Create(ctx, &u); err != nil {
				return err
			}
		}
		if len(seed.Transactions) > 0 {
			txs := append([]domain.Transaction(nil), seed.Transactions...)
			if err := repos.Transactions.CreateBatch(ctx, txs); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
