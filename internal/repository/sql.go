package repository

import (
	"context"
	"database/sql"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"stockledger/internal/domain"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// SQLStore долговременное хранилище поверх database/sql
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// OpenSQL opens and pings the database. Call Migrate before first use.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		cfg, err := gomysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		// migrations hold several statements; updates must report matched rows
		cfg.MultiStatements = true
		cfg.ClientFoundRows = true
		dsn = cfg.FormatDSN()
	default:
		return nil, errors.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}
	if driver == DriverSQLite {
		// SQLite allows one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable foreign keys")
		}
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Repositories wires every repository over this store.
func (s *SQLStore) Repositories() Repositories {
	return Repositories{
		Warehouses:   &sqlWarehouses{s},
		Products:     &sqlProducts{s},
		Users:        &sqlUsers{s},
		Transactions: &sqlTransactions{s},
		Tx:           s,
	}
}

type sqlTxKey struct{}

// ext returns the transaction carried by ctx, or the pool.
func (s *SQLStore) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction runs fn inside a database transaction; nested calls join the outer one.
func (s *SQLStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqlWarehouses struct{ s *SQLStore }

func (r *sqlWarehouses) List(ctx context.Context) ([]domain.Warehouse, error) {
	var out []domain.Warehouse
	err := sqlx.SelectContext(ctx, r.s.ext(ctx), &out, `SELECT id, name FROM warehouses ORDER BY id`)
	return out, errors.Wrap(err, "list warehouses")
}

func (r *sqlWarehouses) Create(ctx context.Context, w *domain.Warehouse) error {
	ensureID(&w.ID)
	_, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx), `INSERT INTO warehouses (id, name) VALUES (:id, :name)`, w)
	return errors.Wrap(err, "insert warehouse")
}

type sqlProducts struct{ s *SQLStore }

func (r *sqlProducts) List(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := sqlx.SelectContext(ctx, r.s.ext(ctx), &out, `SELECT id, name, is_deleted FROM products ORDER BY id`)
	return out, errors.Wrap(err, "list products")
}

func (r *sqlProducts) Create(ctx context.Context, p *domain.Product) error {
	ensureID(&p.ID)
	_, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx),
		`INSERT INTO products (id, name, is_deleted) VALUES (:id, :name, :is_deleted)`, p)
	return errors.Wrap(err, "insert product")
}

func (r *sqlProducts) Update(ctx context.Context, p *domain.Product) error {
	res, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx),
		`UPDATE products SET name = :name, is_deleted = :is_deleted WHERE id = :id`, p)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	return expectOneRow(res, "update product")
}

type sqlUsers struct{ s *SQLStore }

func (r *sqlUsers) List(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := sqlx.SelectContext(ctx, r.s.ext(ctx), &out, `SELECT id, name, password, is_deleted FROM users ORDER BY id`)
	return out, errors.Wrap(err, "list users")
}

func (r *sqlUsers) Create(ctx context.Context, u *domain.User) error {
	ensureID(&u.ID)
	_, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx),
		`INSERT INTO users (id, name, password, is_deleted) VALUES (:id, :name, :password, :is_deleted)`, u)
	return errors.Wrap(err, "insert user")
}

func (r *sqlUsers) Update(ctx context.Context, u *domain.User) error {
	res, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx),
		`UPDATE users SET name = :name, password = :password, is_deleted = :is_deleted WHERE id = :id`, u)
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	return expectOneRow(res, "update user")
}

// transactionRow раскладка строки журнала; время хранится в наносекундах Unix
type transactionRow struct {
	ID          string         `db:"id"`
	ProductID   string         `db:"product_id"`
	WarehouseID string         `db:"warehouse_id"`
	UserID      string         `db:"user_id"`
	Type        string         `db:"tx_type"`
	Quantity    int64          `db:"quantity"`
	OccurredAt  int64          `db:"occurred_at"`
	Description string         `db:"description"`
	ReversesID  sql.NullString `db:"reverses_id"`
}

func toRow(t domain.Transaction) transactionRow {
	return transactionRow{
		ID:          t.ID,
		ProductID:   t.ProductID,
		WarehouseID: t.WarehouseID,
		UserID:      t.UserID,
		Type:        string(t.Type),
		Quantity:    t.Quantity,
		OccurredAt:  t.Timestamp.UnixNano(),
		Description: t.Description,
		ReversesID:  sql.NullString{String: t.ReversesID, Valid: t.ReversesID != ""},
	}
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		ProductID:   r.ProductID,
		WarehouseID: r.WarehouseID,
		UserID:      r.UserID,
		Type:        domain.TransactionType(r.Type),
		Quantity:    r.Quantity,
		Timestamp:   time.Unix(0, r.OccurredAt).UTC(),
		Description: r.Description,
		ReversesID:  r.ReversesID.String,
	}
}

const insertTransaction = `INSERT INTO transactions
	(id, product_id, warehouse_id, user_id, tx_type, quantity, occurred_at, description, reverses_id)
	VALUES (:id, :product_id, :warehouse_id, :user_id, :tx_type, :quantity, :occurred_at, :description, :reverses_id)`

type sqlTransactions struct{ s *SQLStore }

func (r *sqlTransactions) List(ctx context.Context) ([]domain.Transaction, error) {
	var rows []transactionRow
	err := sqlx.SelectContext(ctx, r.s.ext(ctx), &rows, `
		SELECT id, product_id, warehouse_id, user_id, tx_type, quantity, occurred_at, description, reverses_id
		FROM transactions ORDER BY occurred_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *sqlTransactions) Create(ctx context.Context, t *domain.Transaction) error {
	ensureID(&t.ID)
	_, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx), insertTransaction, toRow(*t))
	return errors.Wrap(err, "insert transaction")
}

func (r *sqlTransactions) CreateBatch(ctx context.Context, ts []domain.Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	rows := make([]transactionRow, 0, len(ts))
	for i := range ts {
		ensureID(&ts[i].ID)
		rows = append(rows, toRow(ts[i]))
	}
	_, err := sqlx.NamedExecContext(ctx, r.s.ext(ctx), insertTransaction, rows)
	return errors.Wrap(err, "insert transactions")
}

func (r *sqlTransactions) Delete(ctx context.Context, id string) error {
	res, err := r.s.ext(ctx).ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}
	return expectOneRow(res, "delete transaction")
}
