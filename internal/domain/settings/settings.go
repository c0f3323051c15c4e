// Package settings exposes the store-wide currency and tax configuration
// consumed by checkout, refunds and reports.
package settings

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/money"
)

// TaxDefaults is the tax configuration applied when a checkout does not
// carry an explicit rate.
type TaxDefaults struct {
	Rate      decimal.Decimal
	Inclusive bool
}

// DefaultTax is used when no store settings are available.
var DefaultTax = TaxDefaults{Rate: decimal.NewFromInt(16)}

// Store reads persisted settings.
type Store interface {
	CurrencyFormat(ctx context.Context) (money.Format, error)
	TaxDefaults(ctx context.Context) (TaxDefaults, error)
}

// Resolver wraps a Store and never fails: when the store is unavailable it
// falls back to the hardcoded defaults.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over store. A nil store always yields
// defaults.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// CurrencyFormat returns the configured format or money.DefaultFormat.
func (r *Resolver) CurrencyFormat(ctx context.Context) money.Format {
	if r == nil || r.store == nil {
		return money.DefaultFormat
	}
	f, err := r.store.CurrencyFormat(ctx)
	if err != nil {
		zctx.From(ctx).Warn("Currency settings unavailable, using defaults", zap.Error(err))
		return money.DefaultFormat
	}
	return f
}

// TaxDefaults returns the configured tax defaults or DefaultTax.
func (r *Resolver) TaxDefaults(ctx context.Context) TaxDefaults {
	if r == nil || r.store == nil {
		return DefaultTax
	}
	t, err := r.store.TaxDefaults(ctx)
	if err != nil {
		zctx.From(ctx).Warn("Tax settings unavailable, using defaults", zap.Error(err))
		return DefaultTax
	}
	return t
}
