package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
)

const productColumns = `id, name, sku, COALESCE(category_id, ''), price, cost, stock,
	low_stock_alert, track_inventory, is_active, created_at`

var _ catalog.Store = (*CatalogStore)(nil)

// CatalogStore implements catalog.Store backed by PostgreSQL.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore returns a CatalogStore that uses the given pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.CategoryID, &p.Price, &p.Cost, &p.Stock,
		&p.LowStockAlert, &p.TrackInventory, &p.IsActive, &p.CreatedAt)
	return p, err
}

// FindProduct returns the product with the given id or catalog.ErrNotFound.
func (s *CatalogStore) FindProduct(ctx context.Context, id string) (*catalog.Product, error) {
	row := conn(ctx, s.pool).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find product %q", id)
	}
	return &p, nil
}

// DecrementStock lowers stock by qty, clamping at zero.
func (s *CatalogStore) DecrementStock(ctx context.Context, id string, qty int) error {
	return s.adjust(ctx, `UPDATE products SET stock = GREATEST(stock - $2, 0), updated_at = now() WHERE id = $1`, id, qty)
}

// RestoreStock raises stock by qty.
func (s *CatalogStore) RestoreStock(ctx context.Context, id string, qty int) error {
	return s.adjust(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
}

func (s *CatalogStore) adjust(ctx context.Context, query, id string, qty int) error {
	tag, err := conn(ctx, s.pool).Exec(ctx, query, id, qty)
	if err != nil {
		return errors.Wrapf(err, "adjust stock of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ListProducts returns every product ordered by name.
func (s *CatalogStore) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return products, nil
}

// ListCategories returns every category ordered by name.
func (s *CatalogStore) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `SELECT id, name FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query categories")
	}
	cats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		var c catalog.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect categories")
	}
	return cats, nil
}

// UpsertCategory inserts or renames a category.
func (s *CatalogStore) UpsertCategory(ctx context.Context, c catalog.Category) error {
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, c.ID, c.Name)
	if err != nil {
		return errors.Wrapf(err, "upsert category %q", c.ID)
	}
	return nil
}

// UpsertProduct inserts a product or overwrites its catalog fields and stock.
func (s *CatalogStore) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO products
		(id, name, sku, category_id, price, cost, stock, low_stock_alert, track_inventory, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, sku = EXCLUDED.sku, category_id = EXCLUDED.category_id,
			price = EXCLUDED.price, cost = EXCLUDED.cost, stock = EXCLUDED.stock,
			low_stock_alert = EXCLUDED.low_stock_alert, track_inventory = EXCLUDED.track_inventory,
			is_active = EXCLUDED.is_active, updated_at = now()`,
		p.ID, p.Name, p.SKU, nullString(p.CategoryID), p.Price, p.Cost, p.Stock,
		p.LowStockAlert, p.TrackInventory, p.IsActive)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
