package report

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/period"
)

// StockStatus buckets a tracked product by its stock level.
type StockStatus string

const (
	OutOfStock StockStatus = "out_of_stock"
	LowStock   StockStatus = "low_stock"
	InStock    StockStatus = "in_stock"
)

func stockStatus(p catalog.Product) StockStatus {
	switch {
	case p.Stock <= 0:
		return OutOfStock
	case p.Stock <= p.LowStockAlert:
		return LowStock
	default:
		return InStock
	}
}

var statusRank = map[StockStatus]int{OutOfStock: 0, LowStock: 1, InStock: 2}

// InventoryItem is the stock position of one tracked product.
type InventoryItem struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Category      string          `json:"category"`
	Stock         int             `json:"stock"`
	LowStockAlert int             `json:"lowStockAlert"`
	Status        StockStatus     `json:"status"`
	CostValue     decimal.Decimal `json:"costValue"`
	RetailValue   decimal.Decimal `json:"retailValue"`
}

// InventoryReport is the current stock position of active tracked products.
// It does not depend on the window.
type InventoryReport struct {
	TotalProducts   int             `json:"totalProducts"`
	TrackedProducts int             `json:"trackedProducts"`
	InStock         int             `json:"inStock"`
	LowStock        int             `json:"lowStock"`
	OutOfStock      int             `json:"outOfStock"`
	CostValue       decimal.Decimal `json:"costValue"`
	RetailValue     decimal.Decimal `json:"retailValue"`
	PotentialProfit decimal.Decimal `json:"potentialProfit"`
	Items           []InventoryItem `json:"items"`
}

func (r *InventoryReport) Columns() []Column {
	return []Column{
		{Name: "product_id"}, {Name: "name"}, {Name: "sku"}, {Name: "category"},
		{Name: "stock", Numeric: true}, {Name: "low_stock_alert", Numeric: true},
		{Name: "status"},
		{Name: "cost_value", Numeric: true}, {Name: "retail_value", Numeric: true},
	}
}

func (r *InventoryReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		rows = append(rows, []string{
			it.ID, it.Name, it.SKU, it.Category,
			intCell(it.Stock), intCell(it.LowStockAlert), string(it.Status),
			amountCell(it.CostValue), amountCell(it.RetailValue),
		})
	}
	return rows
}

func (e *Engine) inventory(ctx context.Context, _ Params, _ period.Window) (Table, error) {
	products, err := e.productSrc.ListProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	names, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}
	return buildInventory(products, names), nil
}

func buildInventory(products []catalog.Product, categoryNames map[string]string) *InventoryReport {
	r := &InventoryReport{Items: []InventoryItem{}}
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		r.TotalProducts++
		if !p.TrackInventory {
			continue
		}
		r.TrackedProducts++

		st := stockStatus(p)
		switch st {
		case OutOfStock:
			r.OutOfStock++
		case LowStock:
			r.LowStock++
		default:
			r.InStock++
		}

		units := money.Qty(max(p.Stock, 0))
		item := InventoryItem{
			ID:            p.ID,
			Name:          p.Name,
			SKU:           p.SKU,
			Category:      categoryNames[p.CategoryID],
			Stock:         p.Stock,
			LowStockAlert: p.LowStockAlert,
			Status:        st,
			CostValue:     p.Cost.Mul(units),
			RetailValue:   p.Price.Mul(units),
		}
		r.CostValue = r.CostValue.Add(item.CostValue)
		r.RetailValue = r.RetailValue.Add(item.RetailValue)
		r.Items = append(r.Items, item)
	}
	r.PotentialProfit = r.RetailValue.Sub(r.CostValue)

	sort.Slice(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if statusRank[a.Status] != statusRank[b.Status] {
			return statusRank[a.Status] < statusRank[b.Status]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return r
}
