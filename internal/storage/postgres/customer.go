package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/customer"
)

const customerColumns = `id, name, phone, email, order_count, total_spent, last_order_date, created_at`

var _ customer.Store = (*CustomerStore)(nil)

// CustomerStore implements customer.Store backed by PostgreSQL.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

func scanCustomer(row pgx.Row) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.OrderCount, &c.TotalSpent,
		&c.LastOrderDate, &c.CreatedAt)
	return c, err
}

// FindCustomer returns the customer with the given id or customer.ErrNotFound.
func (s *CustomerStore) FindCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find customer %q", id)
	}
	return &c, nil
}

// RecordOrder adds one order of amount to the customer's aggregates.
func (s *CustomerStore) RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	tag, err := conn(ctx, s.pool).Exec(ctx, `UPDATE customers
		SET order_count = order_count + 1, total_spent = total_spent + $2, last_order_date = $3
		WHERE id = $1`, id, amount, at)
	if err != nil {
		return errors.Wrapf(err, "record order for customer %q", id)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// ListCustomers returns every customer ordered by creation time.
func (s *CustomerStore) ListCustomers(ctx context.Context) ([]customer.Customer, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query customers")
	}
	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		return scanCustomer(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect customers")
	}
	return customers, nil
}

// UpsertCustomer inserts a customer or updates its contact details. Order
// aggregates of an existing customer are left untouched.
func (s *CustomerStore) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email`,
		c.ID, c.Name, c.Phone, c.Email, createdAt)
	if err != nil {
		return errors.Wrapf(err, "upsert customer %q", c.ID)
	}
	return nil
}
