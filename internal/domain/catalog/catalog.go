package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a sellable catalog item and its inventory state.
type Product struct {
	ID             string
	Name           string
	SKU            string
	CategoryID     string
	Price          decimal.Decimal
	Cost           decimal.Decimal
	Stock          int
	LowStockAlert  int
	TrackInventory bool
	IsActive       bool
	CreatedAt      time.Time
}

// Category groups products for reporting.
type Category struct {
	ID   string
	Name string
}

// Store is the catalog collaborator used by checkout, the order lifecycle
// and reporting. Stock changes run inside the caller's unit of work when the
// context carries one.
type Store interface {
	FindProduct(ctx context.Context, id string) (*Product, error)
	// DecrementStock lowers stock by qty, never below zero.
	DecrementStock(ctx context.Context, id string, qty int) error
	RestoreStock(ctx context.Context, id string, qty int) error
	ListProducts(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
