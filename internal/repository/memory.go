package repository

import (
	"context"
	"sync"

	"stockledger/internal/domain"
)

// MemoryStore объединённое in-memory хранилище; порядок вставки сохраняется
type MemoryStore struct {
	mu           sync.RWMutex
	warehouses   []domain.Warehouse
	products     []domain.Product
	users        []domain.User
	transactions []domain.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryRepositories wires every repository over one store.
func NewMemoryRepositories(store *MemoryStore) Repositories {
	return Repositories{
		Warehouses:   NewMemoryWarehouses(store),
		Products:     store,
		Users:        NewMemoryUsers(store),
		Transactions: NewMemoryTransactions(store),
		Tx:           NewMemoryTx(store),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// Ensure interfaces
var (
	_ ProductRepository     = (*MemoryStore)(nil)
	_ WarehouseRepository   = (*MemoryWarehouses)(nil)
	_ UserRepository        = (*MemoryUsers)(nil)
	_ TransactionRepository = (*MemoryTransactions)(nil)
	_ TxManager             = (*MemoryTx)(nil)
)

// ProductRepository implementation
func (m *MemoryStore) List(ctx context.Context) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	return append([]domain.Product(nil), m.products...), nil
}

func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	ensureID(&p.ID)
	m.products = append(m.products, *p)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	for i := range m.products {
		if m.products[i].ID == p.ID {
			m.products[i] = *p
			return nil
		}
	}
	return ErrNotFound
}

// WarehouseRepository implementation on wrapper type
type MemoryWarehouses struct{ store *MemoryStore }

func NewMemoryWarehouses(store *MemoryStore) *MemoryWarehouses {
	return &MemoryWarehouses{store: store}
}

func (mw *MemoryWarehouses) List(ctx context.Context) ([]domain.Warehouse, error) {
	mw.store.rlock(ctx)
	defer mw.store.runlock(ctx)
	return append([]domain.Warehouse(nil), mw.store.warehouses...), nil
}

func (mw *MemoryWarehouses) Create(ctx context.Context, w *domain.Warehouse) error {
	mw.store.wlock(ctx)
	defer mw.store.wunlock(ctx)
	ensureID(&w.ID)
	mw.store.warehouses = append(mw.store.warehouses, *w)
	return nil
}

// UserRepository implementation on wrapper type
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

func (us *MemoryUsers) List(ctx context.Context) ([]domain.User, error) {
	us.store.rlock(ctx)
	defer us.store.runlock(ctx)
	return append([]domain.User(nil), us.store.users...), nil
}

func (us *MemoryUsers) Create(ctx context.Context, u *domain.User) error {
	us.store.wlock(ctx)
	defer us.store.wunlock(ctx)
	ensureID(&u.ID)
	us.store.users = append(us.store.users, *u)
	return nil
}

func (us *MemoryUsers) Update(ctx context.Context, u *domain.User) error {
	us.store.wlock(ctx)
	defer us.store.wunlock(ctx)
	for i := range us.store.users {
		if us.store.users[i].ID == u.ID {
			us.store.users[i] = *u
			return nil
		}
	}
	return ErrNotFound
}

// TransactionRepository implementation on wrapper type
type MemoryTransactions struct{ store *MemoryStore }

func NewMemoryTransactions(store *MemoryStore) *MemoryTransactions {
	return &MemoryTransactions{store: store}
}

func (mt *MemoryTransactions) List(ctx context.Context) ([]domain.Transaction, error) {
	mt.store.rlock(ctx)
	defer mt.store.runlock(ctx)
	return append([]domain.Transaction(nil), mt.store.transactions...), nil
}

func (mt *MemoryTransactions) Create(ctx context.Context, t *domain.Transaction) error {
	mt.store.wlock(ctx)
	defer mt.store.wunlock(ctx)
	ensureID(&t.ID)
	mt.store.transactions = append(mt.store.transactions, *t)
	return nil
}

func (mt *MemoryTransactions) CreateBatch(ctx context.Context, ts []domain.Transaction) error {
	mt.store.wlock(ctx)
	defer mt.store.wunlock(ctx)
	for i := range ts {
		ensureID(&ts[i].ID)
	}
	mt.store.transactions = append(mt.store.transactions, ts...)
	return nil
}

func (mt *MemoryTransactions) Delete(ctx context.Context, id string) error {
	mt.store.wlock(ctx)
	defer mt.store.wunlock(ctx)
	for i := range mt.store.transactions {
		if mt.store.transactions[i].ID == id {
			mt.store.transactions = append(mt.store.transactions[:i:i], mt.store.transactions[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

// WithTransaction holds the store write lock for fn and restores the previous
// contents when fn fails.
func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if isTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	snap := tx.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		tx.store.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	warehouses   []domain.Warehouse
	products     []domain.Product
	users        []domain.User
	transactions []domain.Transaction
}

func (m *MemoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		warehouses:   append([]domain.Warehouse(nil), m.warehouses...),
		products:     append([]domain.Product(nil), m.products...),
		users:        append([]domain.User(nil), m.users...),
		transactions: append([]domain.Transaction(nil), m.transactions...),
	}
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.warehouses = s.warehouses
	m.products = s.products
	m.users = s.users
	m.transactions = s.transactions
}
