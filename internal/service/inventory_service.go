package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/auth"
	"stockledger/internal/domain"
	"stockledger/internal/ledger"
	"stockledger/internal/repository"
)

// DeleteMode поведение удаления транзакции администратором
type DeleteMode string

const (
	// DeleteReverse appends a compensating entry and keeps the original row.
	DeleteReverse DeleteMode = "reverse"
	// DeleteHard removes the row from the log.
	DeleteHard DeleteMode = "hard"
)

// Option настраивает InventoryService
type Option func(*InventoryService)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *InventoryService) { s.log = l }
}

func WithClock(c *Clock) Option {
	return func(s *InventoryService) { s.clock = c }
}

func WithDeleteMode(m DeleteMode) Option {
	return func(s *InventoryService) { s.deleteMode = m }
}

// InventoryService единственный владелец состояния: все мутации проходят
// через него под общей блокировкой записи, чтения видят согласованный снимок.
type InventoryService struct {
	repos      repository.Repositories
	policy     *auth.Policy
	clock      *Clock
	log        logrus.FieldLogger
	deleteMode DeleteMode

	mu           sync.RWMutex
	warehouses   []domain.Warehouse
	products     []domain.Product
	users        []domain.User
	transactions []domain.Transaction
	version      uint64

	cacheMu      sync.Mutex
	cachedView   domain.InventoryView
	cacheVersion uint64

	sessMu   sync.Mutex
	sessions map[string]domain.Session
}

func NewInventoryService(repos repository.Repositories, policy *auth.Policy, opts ...Option) *InventoryService {
	s := &InventoryService{
		repos:      repos,
		policy:     policy,
		clock:      NewClock(nil),
		log:        logrus.StandardLogger(),
		deleteMode: DeleteReverse,
		sessions:   make(map[string]domain.Session),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory state with the contents of the store.
func (s *InventoryService) Load(ctx context.Context) error {
	var (
		warehouses   []domain.Warehouse
		products     []domain.Product
		users        []domain.User
		transactions []domain.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { warehouses, err = s.repos.Warehouses.List(gctx); return })
	g.Go(func() (err error) { products, err = s.repos.Products.List(gctx); return })
	g.Go(func() (err error) { users, err = s.repos.Users.List(gctx); return })
	g.Go(func() (err error) { transactions, err = s.repos.Transactions.List(gctx); return })
	if err := g.Wait(); err != nil {
		return domain.Persistence("initial load", err)
	}

	sort.Slice(warehouses, func(i, j int) bool { return warehouses[i].ID < warehouses[j].ID })
	for _, t := range transactions {
		s.clock.Observe(t.Timestamp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses = warehouses
	s.products = products
	s.users = users
	s.transactions = transactions
	s.version++

	s.log.WithFields(logrus.Fields{
		"warehouses":   len(warehouses),
		"products":     len(products),
		"users":        len(users),
		"transactions": len(transactions),
	}).Info("inventory state loaded")
	return nil
}

// Close ends every session. The service must not be used afterwards.
func (s *InventoryService) Close() {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions = make(map[string]domain.Session)
}

// ProductFilter параметры выборки товаров
type ProductFilter struct {
	Query          string
	IncludeDeleted bool
}

// TransactionFilter параметры выборки журнала; нулевые границы не ограничивают
type TransactionFilter struct {
	ProductID string
	From      time.Time
	To        time.Time
}

func (s *InventoryService) Warehouses() []domain.Warehouse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Warehouse(nil), s.warehouses...)
}

// Products returns products matching f, sorted by name.
func (s *InventoryService) Products(f ProductFilter) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if !containsIgnoreCase(p.Name, strings.TrimSpace(f.Query)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *InventoryService) Product(id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, domain.Errorf(domain.KindNotFound, "product %q not found", id)
}

func (s *InventoryService) Users(includeDeleted bool) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Transactions returns log entries matching f, newest first.
func (s *InventoryService) Transactions(f TransactionFilter) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if f.ProductID != "" && t.ProductID != f.ProductID {
			continue
		}
		if !f.From.IsZero() && t.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && t.Timestamp.After(f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Inventory returns a copy of the derived view.
func (s *InventoryService) Inventory() domain.InventoryView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneView(s.viewLocked())
}

func (s *InventoryService) WarehouseTotals() []domain.WarehouseTotal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger.WarehouseTotals(s.viewLocked(), s.warehouses)
}

func (s *InventoryService) TotalStock() int64 {
	return ledger.GrandTotal(s.WarehouseTotals())
}

// viewLocked memoizes the derived view per state version. Caller holds s.mu.
func (s *InventoryService) viewLocked() domain.InventoryView {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cachedView != nil && s.cacheVersion == s.version {
		return s.cachedView
	}
	s.cachedView = ledger.Derive(s.products, s.warehouses, s.transactions)
	s.cacheVersion = s.version
	return s.cachedView
}

func cloneView(v domain.InventoryView) domain.InventoryView {
	out := make(domain.InventoryView, len(v))
	for id, ps := range v {
		stock := make(map[string]int64, len(ps.Stock))
		for w, q := range ps.Stock {
			stock[w] = q
		}
		ps.Stock = stock
		out[id] = ps
	}
	return out
}

// findActiveUser is an auth.UserFinder over the current state. Caller holds s.mu.
func (s *InventoryService) findActiveUser(id string) (domain.User, bool) {
	if i := s.activeUserIndex(id); i >= 0 {
		return s.users[i], true
	}
	return domain.User{}, false
}

func (s *InventoryService) activeUserIndex(id string) int {
	for i, u := range s.users {
		if u.ID == id && !u.IsDeleted {
			return i
		}
	}
	return -1
}

func (s *InventoryService) activeProductIndex(id string) int {
	for i, p := range s.products {
		if p.ID == id && !p.IsDeleted {
			return i
		}
	}
	return -1
}

func (s *InventoryService) hasWarehouse(id string) bool {
	for _, w := range s.warehouses {
		if w.ID == id {
			return true
		}
	}
	return false
}

// storeErr classifies a repository failure.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "%s: record no longer exists in storage", op)
	}
	return domain.Persistence(op, err)
}

// observe logs the outcome of a mutation; errp points at its named error result.
func (s *InventoryService) observe(op string, actor domain.Actor, errp *error) {
	if *errp == nil {
		return
	}
	kind := domain.KindOf(*errp)
	entry := s.log.WithFields(logrus.Fields{"op": op, "actor": actor.ID, "kind": kind}).WithError(*errp)
	if kind == domain.KindPersistence {
		entry.Error("operation failed")
		return
	}
	entry.Debug("operation rejected")
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.Errorf(domain.KindInvalidInput, "%s is required", name)
	}
	return nil
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
