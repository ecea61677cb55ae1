package domain

import "time"

// AdminID идентификатор встроенной учётной записи администратора
const AdminID = "admin"

// Product товар, хранящийся на складах
type Product struct {
	ID        string `json:"id" yaml:"id" db:"id"`
	Name      string `json:"name" yaml:"name" db:"name"`
	IsDeleted bool   `json:"is_deleted" yaml:"is_deleted" db:"is_deleted"`
}

// Warehouse склад из фиксированного справочника
type Warehouse struct {
	ID   string `json:"id" yaml:"id" db:"id"`
	Name string `json:"name" yaml:"name" db:"name"`
}

// User оператор, регистрирующий движения товара
type User struct {
	ID        string `json:"id" yaml:"id" db:"id"`
	Name      string `json:"name" yaml:"name" db:"name"`
	Password  string `json:"-" yaml:"password" db:"password"`
	IsDeleted bool   `json:"is_deleted" yaml:"is_deleted" db:"is_deleted"`
}

// TransactionType тип записи журнала
type TransactionType string

const (
	TransactionIn     TransactionType = "IN"
	TransactionOut    TransactionType = "OUT"
	TransactionDelete TransactionType = "DELETE"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionIn, TransactionOut, TransactionDelete:
		return true
	}
	return false
}

// Transaction запись журнала движений; после создания не изменяется
type Transaction struct {
	ID          string          `json:"id" yaml:"id"`
	ProductID   string          `json:"product_id" yaml:"product_id"`
	WarehouseID string          `json:"warehouse_id" yaml:"warehouse_id"`
	UserID      string          `json:"user_id" yaml:"user_id"`
	Type        TransactionType `json:"type" yaml:"type"`
	Quantity    int64           `json:"quantity" yaml:"quantity"`
	Timestamp   time.Time       `json:"timestamp" yaml:"timestamp"`
	Description string          `json:"description" yaml:"description"`
	// ReversesID is set on compensating entries only.
	ReversesID string `json:"reverses_id,omitempty" yaml:"reverses_id,omitempty"`
}

// ProductStock остатки одного товара по складам
type ProductStock struct {
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Stock       map[string]int64 `json:"stock"`
	Total       int64            `json:"total"`
}

// InventoryView производное представление остатков, ключ — ID товара
type InventoryView map[string]ProductStock

// WarehouseTotal суммарный остаток на складе
type WarehouseTotal struct {
	WarehouseID string `json:"warehouse_id"`
	Name        string `json:"name"`
	Total       int64  `json:"total"`
}

// Role роль действующего лица
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Actor действующее лицо сессии
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Credentials данные для входа: либо AdminPassword, либо UserID+Password
type Credentials struct {
	AdminPassword string `json:"admin_password"`
	UserID        string `json:"user_id"`
	Password      string `json:"password"`
}

// Session установленная сессия
type Session struct {
	Token     string    `json:"token"`
	Actor     Actor     `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
