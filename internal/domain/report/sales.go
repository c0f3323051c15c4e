package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
)

const (
	uncategorized   = "uncategorized"
	maxFilledDays   = 366
	defaultTopLimit = 10
)

// SalesSummary totals revenue orders in the window. Revenue is the order
// total, so it includes tax and shipping net of order discounts.
type SalesSummary struct {
	Orders            int             `json:"orders"`
	ItemsSold         int             `json:"itemsSold"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	Figures
}

// SalesBucket is one group of the sales report. For product and category
// grouping revenue is the sum of line totals.
type SalesBucket struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Orders    int    `json:"orders"`
	ItemsSold int    `json:"itemsSold"`
	Figures
}

// SalesReport is revenue over time or per product or category.
type SalesReport struct {
	GroupBy Grouping      `json:"groupBy"`
	Summary SalesSummary  `json:"summary"`
	Buckets []SalesBucket `json:"buckets"`
}

func (r *SalesReport) Columns() []Column {
	return []Column{
		{Name: "key"}, {Name: "label"},
		{Name: "orders", Numeric: true}, {Name: "items_sold", Numeric: true},
		{Name: "revenue", Numeric: true}, {Name: "cost", Numeric: true},
		{Name: "profit", Numeric: true}, {Name: "profit_margin", Numeric: true},
	}
}

func (r *SalesReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Buckets))
	for _, b := range r.Buckets {
		rows = append(rows, []string{
			b.Key, b.Label, intCell(b.Orders), intCell(b.ItemsSold),
			amountCell(b.Revenue), amountCell(b.Cost), amountCell(b.Profit), amountCell(b.ProfitMargin),
		})
	}
	return rows
}

func (e *Engine) sales(ctx context.Context, p Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	groupBy := p.GroupBy
	if groupBy == "" {
		groupBy = ByDay
	}

	var categoryNames map[string]string
	if groupBy == ByCategory {
		if categoryNames, err = e.categoryNames(ctx); err != nil {
			return nil, err
		}
	}
	return buildSales(orders, groupBy, w, e.loc, categoryNames), nil
}

func buildSales(orders []order.Order, groupBy Grouping, w period.Window, loc *time.Location, categoryNames map[string]string) *SalesReport {
	r := &SalesReport{GroupBy: groupBy, Summary: summarize(orders)}

	switch groupBy {
	case ByProduct:
		for _, a := range rankLines(aggregateLines(orders, productKey)) {
			r.Buckets = append(r.Buckets, a.bucket())
		}
	case ByCategory:
		for _, a := range rankLines(aggregateLines(orders, categoryKey(categoryNames))) {
			r.Buckets = append(r.Buckets, a.bucket())
		}
	default:
		r.Buckets = timeBuckets(orders, groupBy, w, loc)
	}
	if r.Buckets == nil {
		r.Buckets = []SalesBucket{}
	}
	return r
}

func summarize(orders []order.Order) SalesSummary {
	var s SalesSummary
	for i := range orders {
		o := &orders[i]
		s.Orders++
		s.ItemsSold += o.ItemCount()
		s.add(o.TotalAmount, o.TotalCost)
	}
	s.finish()
	s.AverageOrderValue = average(s.Revenue, s.Orders)
	return s
}

func timeKey(g Grouping, t time.Time) string {
	switch g {
	case ByWeek:
		y, wk := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, wk)
	case ByMonth:
		return t.Format("2006-01")
	case ByYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

func timeBuckets(orders []order.Order, g Grouping, w period.Window, loc *time.Location) []SalesBucket {
	byKey := make(map[string]*SalesBucket)
	get := func(key string) *SalesBucket {
		b, ok := byKey[key]
		if !ok {
			b = &SalesBucket{Key: key, Label: key}
			byKey[key] = b
		}
		return b
	}

	// Empty days are reported as zero rows so daily trends have no gaps.
	if g == ByDay && w.End.Sub(w.Start) <= maxFilledDays*24*time.Hour {
		for d := period.StartOfDay(w.Start, loc); d.Before(w.End); d = d.AddDate(0, 0, 1) {
			get(timeKey(g, d))
		}
	}

	for i := range orders {
		o := &orders[i]
		b := get(timeKey(g, o.CreatedAt.In(loc)))
		b.Orders++
		b.ItemsSold += o.ItemCount()
		b.add(o.TotalAmount, o.TotalCost)
	}

	out := make([]SalesBucket, 0, len(byKey))
	for _, b := range byKey {
		b.finish()
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// lineAgg accumulates order lines under one key.
type lineAgg struct {
	key    string
	label  string
	sku    string
	qty    int
	orders map[string]struct{}
	Figures
}

func (a *lineAgg) bucket() SalesBucket {
	return SalesBucket{Key: a.key, Label: a.label, Orders: len(a.orders), ItemsSold: a.qty, Figures: a.Figures}
}

type lineKeyFunc func(l order.Line) (key, label string)

func productKey(l order.Line) (string, string) { return l.ProductID, l.Name }

func categoryKey(names map[string]string) lineKeyFunc {
	return func(l order.Line) (string, string) {
		if l.CategoryID == "" {
			return uncategorized, "Uncategorized"
		}
		if name, ok := names[l.CategoryID]; ok {
			return l.CategoryID, name
		}
		return l.CategoryID, l.CategoryID
	}
}

func aggregateLines(orders []order.Order, keyFn lineKeyFunc) map[string]*lineAgg {
	aggs := make(map[string]*lineAgg)
	for i := range orders {
		o := &orders[i]
		for _, l := range o.Lines {
			key, label := keyFn(l)
			a, ok := aggs[key]
			if !ok {
				a = &lineAgg{key: key, label: label, sku: l.SKU, orders: make(map[string]struct{})}
				aggs[key] = a
			}
			a.qty += l.Quantity
			a.orders[o.ID] = struct{}{}
			a.add(l.Total, l.Cost.Mul(money.Qty(l.Quantity)))
		}
	}
	for _, a := range aggs {
		a.finish()
	}
	return aggs
}

// rankLines orders aggregates by revenue, highest first.
func rankLines(aggs map[string]*lineAgg) []*lineAgg {
	out := make([]*lineAgg, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].key < out[j].key
	})
	return out
}

func (e *Engine) categoryNames(ctx context.Context) (map[string]string, error) {
	cats, err := e.productSrc.ListCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

// CategorySales is the line revenue of one category.
type CategorySales struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Orders   int             `json:"orders"`
	Quantity int             `json:"quantity"`
	Share    decimal.Decimal `json:"share"`
	Figures
}

// CategoryReport is sales by category.
type CategoryReport struct {
	Revenue    decimal.Decimal `json:"revenue"`
	Categories []CategorySales `json:"categories"`
}

func (r *CategoryReport) Columns() []Column {
	return []Column{
		{Name: "category_id"}, {Name: "category"},
		{Name: "orders", Numeric: true}, {Name: "quantity", Numeric: true},
		{Name: "revenue", Numeric: true}, {Name: "cost", Numeric: true},
		{Name: "profit", Numeric: true}, {Name: "profit_margin", Numeric: true},
		{Name: "share", Numeric: true},
	}
}

func (r *CategoryReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		rows = append(rows, []string{
			c.ID, c.Name, intCell(c.Orders), intCell(c.Quantity),
			amountCell(c.Revenue), amountCell(c.Cost), amountCell(c.Profit), amountCell(c.ProfitMargin),
			amountCell(c.Share),
		})
	}
	return rows
}

func (e *Engine) categories(ctx context.Context, _ Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	names, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}
	return buildCategories(orders, names), nil
}

func buildCategories(orders []order.Order, names map[string]string) *CategoryReport {
	ranked := rankLines(aggregateLines(orders, categoryKey(names)))

	r := &CategoryReport{Categories: make([]CategorySales, 0, len(ranked))}
	for _, a := range ranked {
		r.Revenue = r.Revenue.Add(a.Revenue)
	}
	for _, a := range ranked {
		r.Categories = append(r.Categories, CategorySales{
			ID:       a.key,
			Name:     a.label,
			Orders:   len(a.orders),
			Quantity: a.qty,
			Share:    money.Ratio(a.Revenue, r.Revenue),
			Figures:  a.Figures,
		})
	}
	return r
}

// ProductPerformance is the line revenue of one product.
type ProductPerformance struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Orders   int    `json:"orders"`
	Figures
}

// ProductReport ranks products by revenue.
type ProductReport struct {
	Products []ProductPerformance `json:"products"`
}

func (r *ProductReport) Columns() []Column {
	return []Column{
		{Name: "product_id"}, {Name: "name"}, {Name: "sku"},
		{Name: "quantity", Numeric: true}, {Name: "orders", Numeric: true},
		{Name: "revenue", Numeric: true}, {Name: "cost", Numeric: true},
		{Name: "profit", Numeric: true}, {Name: "profit_margin", Numeric: true},
	}
}

func (r *ProductReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Products))
	for _, p := range r.Products {
		rows = append(rows, []string{
			p.ID, p.Name, p.SKU, intCell(p.Quantity), intCell(p.Orders),
			amountCell(p.Revenue), amountCell(p.Cost), amountCell(p.Profit), amountCell(p.ProfitMargin),
		})
	}
	return rows
}

func (e *Engine) products(ctx context.Context, p Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	return buildProducts(orders, p.Limit), nil
}

func buildProducts(orders []order.Order, limit int) *ProductReport {
	ranked := rankLines(aggregateLines(orders, productKey))
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	r := &ProductReport{Products: make([]ProductPerformance, 0, len(ranked))}
	for _, a := range ranked {
		r.Products = append(r.Products, ProductPerformance{
			ID:       a.key,
			Name:     a.label,
			SKU:      a.sku,
			Quantity: a.qty,
			Orders:   len(a.orders),
			Figures:  a.Figures,
		})
	}
	return r
}

// MethodBreakdown is the revenue taken through one payment method.
type MethodBreakdown struct {
	Method            order.PaymentMethod `json:"method"`
	Orders            int                 `json:"orders"`
	Revenue           decimal.Decimal     `json:"revenue"`
	Share             decimal.Decimal     `json:"share"`
	AverageOrderValue decimal.Decimal     `json:"averageOrderValue"`
}

// PaymentReport splits revenue by payment method.
type PaymentReport struct {
	Revenue decimal.Decimal   `json:"revenue"`
	Methods []MethodBreakdown `json:"methods"`
}

func (r *PaymentReport) Columns() []Column {
	return []Column{
		{Name: "method"}, {Name: "orders", Numeric: true},
		{Name: "revenue", Numeric: true}, {Name: "share", Numeric: true},
		{Name: "average_order_value", Numeric: true},
	}
}

func (r *PaymentReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Methods))
	for _, m := range r.Methods {
		rows = append(rows, []string{
			string(m.Method), intCell(m.Orders), amountCell(m.Revenue),
			amountCell(m.Share), amountCell(m.AverageOrderValue),
		})
	}
	return rows
}

func (e *Engine) payments(ctx context.Context, _ Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	return buildPayments(orders), nil
}

func buildPayments(orders []order.Order) *PaymentReport {
	byMethod := make(map[order.PaymentMethod]*MethodBreakdown, len(order.Methods))
	r := &PaymentReport{Methods: make([]MethodBreakdown, 0, len(order.Methods))}
	for _, m := range order.Methods {
		byMethod[m] = &MethodBreakdown{Method: m}
	}
	for i := range orders {
		o := &orders[i]
		m, ok := byMethod[o.Payment.Method]
		if !ok {
			continue
		}
		m.Orders++
		m.Revenue = m.Revenue.Add(o.TotalAmount)
		r.Revenue = r.Revenue.Add(o.TotalAmount)
	}
	for _, method := range order.Methods {
		m := byMethod[method]
		m.Share = money.Ratio(m.Revenue, r.Revenue)
		m.AverageOrderValue = average(m.Revenue, m.Orders)
		r.Methods = append(r.Methods, *m)
	}
	return r
}
