package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a customer id does not resolve.
var ErrNotFound = errors.New("customer not found")

// Customer is the CRM record a checkout may be attached to. The order
// aggregates are only ever incremented by checkout.
type Customer struct {
	ID            string
	Name          string
	Phone         string
	Email         string
	OrderCount    int
	TotalSpent    decimal.Decimal
	LastOrderDate *time.Time
	CreatedAt     time.Time
}

// Store is the customer collaborator.
type Store interface {
	FindCustomer(ctx context.Context, id string) (*Customer, error)
	// RecordOrder increments the order count and total spent and sets the
	// last order date.
	RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error
	ListCustomers(ctx context.Context) ([]Customer, error)
}
