package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
	"github.com/xenking/pos-backoffice/internal/storage/cache"
	"github.com/xenking/pos-backoffice/internal/storage/postgres"
)

type seedFile struct {
	Settings   *settingsJSON  `json:"settings"`
	Categories []categoryJSON `json:"categories"`
	Products   []productJSON  `json:"products"`
	Customers  []customerJSON `json:"customers"`
	Staff      []staffJSON    `json:"staff"`
}

type settingsJSON struct {
	Currency struct {
		Code              string `json:"code"`
		Symbol            string `json:"symbol"`
		Position          string `json:"position"`
		Decimals          int32  `json:"decimals"`
		ThousandSeparator string `json:"thousandSeparator"`
		DecimalSeparator  string `json:"decimalSeparator"`
	} `json:"currency"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	TaxInclusive bool            `json:"taxInclusive"`
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SKU            string          `json:"sku"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	Cost           decimal.Decimal `json:"cost"`
	Stock          int             `json:"stock"`
	LowStockAlert  int             `json:"lowStockAlert"`
	TrackInventory *bool           `json:"trackInventory"`
	IsActive       *bool           `json:"isActive"`
}

type customerJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type staffJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	APIKey string `json:"apiKey"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
		redisAddr    string
		redisPrefix  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/pos.json", "path to the seed JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address; when set, cached settings are invalidated (or POS_REDIS_ADDR env)")
	flag.StringVar(&redisPrefix, "redis-prefix", "pos", "Redis key prefix of the settings cache")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("POS_API_KEY_PEPPER")
	}
	if apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or POS_API_KEY_PEPPER")
		os.Exit(1)
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("POS_REDIS_ADDR")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, []byte(apiKeyPepper), redisAddr, redisPrefix); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string, pepper []byte, redisAddr, redisPrefix string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, postgres.NewCatalogStore(pool), seed); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCustomers(ctx, postgres.NewCustomerStore(pool), seed.Customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedStaff(ctx, postgres.NewStaffStore(pool), seed.Staff, pepper); err != nil {
		return errors.Wrap(err, "seed staff")
	}
	if seed.Settings != nil {
		store := postgres.NewSettingsStore(pool)
		if err := seedSettings(ctx, store, *seed.Settings); err != nil {
			return errors.Wrap(err, "seed settings")
		}
		if redisAddr != "" {
			if err := invalidateSettings(ctx, store, redisAddr, redisPrefix); err != nil {
				return errors.Wrap(err, "invalidate settings cache")
			}
		}
	}

	return nil
}

func seedCatalog(ctx context.Context, store *postgres.CatalogStore, seed seedFile) error {
	slog.Info("upserting categories", slog.Int("count", len(seed.Categories)))

	for _, c := range seed.Categories {
		if err := store.UpsertCategory(ctx, catalog.Category{ID: c.ID, Name: c.Name}); err != nil {
			return errors.Wrapf(err, "upsert category %s", c.ID)
		}
	}

	slog.Info("upserting products", slog.Int("count", len(seed.Products)))

	now := time.Now()
	for _, p := range seed.Products {
		if err := store.UpsertProduct(ctx, catalog.Product{
			ID:             p.ID,
			Name:           p.Name,
			SKU:            p.SKU,
			CategoryID:     p.Category,
			Price:          p.Price,
			Cost:           p.Cost,
			Stock:          p.Stock,
			LowStockAlert:  p.LowStockAlert,
			TrackInventory: boolOr(p.TrackInventory, true),
			IsActive:       boolOr(p.IsActive, true),
			CreatedAt:      now,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCustomers(ctx context.Context, store *postgres.CustomerStore, customers []customerJSON) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	now := time.Now()
	for _, c := range customers {
		if err := store.UpsertCustomer(ctx, customer.Customer{
			ID:        c.ID,
			Name:      c.Name,
			Phone:     c.Phone,
			Email:     c.Email,
			CreatedAt: now,
		}); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}

	return nil
}

func seedStaff(ctx context.Context, store *postgres.StaffStore, members []staffJSON, pepper []byte) error {
	slog.Info("upserting staff", slog.Int("count", len(members)))

	for _, m := range members {
		member := staff.Member{
			ID:     m.ID,
			Name:   m.Name,
			Role:   staff.Role(m.Role),
			Active: true,
		}
		// Without a key the stored hash is kept.
		if m.APIKey != "" {
			member.KeyHash = staff.HashKey(pepper, m.APIKey)
		}
		if err := store.UpsertStaff(ctx, member); err != nil {
			return errors.Wrapf(err, "upsert staff %s", m.ID)
		}

		slog.Info("upserted staff", slog.String("id", m.ID), slog.String("role", m.Role))
	}

	return nil
}

func seedSettings(ctx context.Context, store *postgres.SettingsStore, s settingsJSON) error {
	slog.Info("saving store settings", slog.String("currency", s.Currency.Code))

	f := money.Format{
		Code:              s.Currency.Code,
		Symbol:            s.Currency.Symbol,
		Position:          money.SymbolPosition(s.Currency.Position),
		Decimals:          s.Currency.Decimals,
		ThousandSeparator: s.Currency.ThousandSeparator,
		DecimalSeparator:  s.Currency.DecimalSeparator,
	}
	if f.Position == "" {
		f.Position = money.SymbolBefore
	}
	return store.Save(ctx, f, settings.TaxDefaults{Rate: s.TaxRate, Inclusive: s.TaxInclusive})
}

func invalidateSettings(ctx context.Context, store *postgres.SettingsStore, addr, prefix string) error {
	client, err := cache.NewClient(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	slog.Info("invalidating cached settings", slog.String("redis", addr))
	return cache.NewSettingsCache(store, client, prefix, cache.DefaultTTL).Invalidate(ctx)
}
