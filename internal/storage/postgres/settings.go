package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
)

// ErrSettingsMissing is returned when the store settings row was never saved.
var ErrSettingsMissing = errors.New("store settings not configured")

var _ settings.Store = (*SettingsStore)(nil)

// SettingsStore implements settings.Store over the single store_settings row.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore returns a SettingsStore that uses the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// CurrencyFormat returns the configured currency rendering.
func (s *SettingsStore) CurrencyFormat(ctx context.Context) (money.Format, error) {
	var (
		f   money.Format
		pos string
	)
	err := conn(ctx, s.pool).QueryRow(ctx, `SELECT currency_code, currency_symbol, symbol_position,
		decimals, thousand_separator, decimal_separator FROM store_settings WHERE id = 1`,
	).Scan(&f.Code, &f.Symbol, &pos, &f.Decimals, &f.ThousandSeparator, &f.DecimalSeparator)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Format{}, ErrSettingsMissing
		}
		return money.Format{}, errors.Wrap(err, "get currency settings")
	}
	f.Position = money.SymbolPosition(pos)
	return f, nil
}

// TaxDefaults returns the configured default tax.
func (s *SettingsStore) TaxDefaults(ctx context.Context) (settings.TaxDefaults, error) {
	var t settings.TaxDefaults
	err := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT tax_rate, tax_inclusive FROM store_settings WHERE id = 1`,
	).Scan(&t.Rate, &t.Inclusive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settings.TaxDefaults{}, ErrSettingsMissing
		}
		return settings.TaxDefaults{}, errors.Wrap(err, "get tax settings")
	}
	return t, nil
}

// Save writes both currency and tax settings.
func (s *SettingsStore) Save(ctx context.Context, f money.Format, t settings.TaxDefaults) error {
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO store_settings
		(id, currency_code, currency_symbol, symbol_position, decimals, thousand_separator,
		 decimal_separator, tax_rate, tax_inclusive)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			currency_code = EXCLUDED.currency_code, currency_symbol = EXCLUDED.currency_symbol,
			symbol_position = EXCLUDED.symbol_position, decimals = EXCLUDED.decimals,
			thousand_separator = EXCLUDED.thousand_separator, decimal_separator = EXCLUDED.decimal_separator,
			tax_rate = EXCLUDED.tax_rate, tax_inclusive = EXCLUDED.tax_inclusive, updated_at = now()`,
		f.Code, f.Symbol, string(f.Position), f.Decimals, f.ThousandSeparator, f.DecimalSeparator,
		t.Rate, t.Inclusive)
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	return nil
}
