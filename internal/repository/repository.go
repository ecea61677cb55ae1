package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"stockledger/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = errors.New("not found")

// WarehouseRepository справочник складов; создание только при начальной настройке
type WarehouseRepository interface {
	List(ctx context.Context) ([]domain.Warehouse, error)
	Create(ctx context.Context, w *domain.Warehouse) error
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
}

// UserRepository интерфейс репозитория пользователей
type UserRepository interface {
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
}

// TransactionRepository журнал движений
type TransactionRepository interface {
	List(ctx context.Context) ([]domain.Transaction, error)
	Create(ctx context.Context, t *domain.Transaction) error
	CreateBatch(ctx context.Context, ts []domain.Transaction) error
	Delete(ctx context.Context, id string) error
}

// TxManager абстракция транзакции. Для in-memory — глобальная блокировка записи.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories набор репозиториев одного хранилища
type Repositories struct {
	Warehouses   WarehouseRepository
	Products     ProductRepository
	Users        UserRepository
	Transactions TransactionRepository
	Tx           TxManager
}

// ensureID assigns a server-side id when the caller left it empty.
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
