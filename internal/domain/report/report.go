// Package report computes read-only sales, inventory, customer and staff
// reports over persisted orders.
//
// Every report is a pure function of a time window and its parameters;
// running it twice against unchanged data yields the same output.
package report

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

// Kind names a report.
type Kind string

const (
	KindSales      Kind = "sales"
	KindCategories Kind = "categories"
	KindInventory  Kind = "inventory"
	KindCustomers  Kind = "customers"
	KindProducts   Kind = "products"
	KindPayments   Kind = "payments"
	KindStaff      Kind = "staff"
	KindDashboard  Kind = "dashboard"
)

// Grouping is the bucket granularity of the sales report.
type Grouping string

const (
	ByDay      Grouping = "day"
	ByWeek     Grouping = "week"
	ByMonth    Grouping = "month"
	ByYear     Grouping = "year"
	ByProduct  Grouping = "product"
	ByCategory Grouping = "category"
)

// Valid reports whether g is a known grouping.
func (g Grouping) Valid() bool {
	switch g {
	case ByDay, ByWeek, ByMonth, ByYear, ByProduct, ByCategory:
		return true
	}
	return false
}

// ErrUnknownKind is returned for a report kind outside the registry.
var ErrUnknownKind = apperr.New(apperr.Validation, "unknown report type")

// Params selects the window and shape of a report. An empty Period with
// Start and End set is a custom window; with neither set the report covers
// the current month to date.
type Params struct {
	Period  period.Name
	Start   time.Time
	End     time.Time
	GroupBy Grouping
	// Limit caps ranked lists. Zero means the report's default.
	Limit int
}

// Column describes one column of a tabular report.
type Column struct {
	Name    string
	Numeric bool
}

// Table is the flat rendering of a report used by exports.
type Table interface {
	Columns() []Column
	Rows() [][]string
}

// Result is a generated report.
type Result struct {
	Kind   Kind        `json:"type"`
	Period period.Name `json:"period"`
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Data   Table       `json:"data"`
}

// OrderSource lists orders by creation time.
type OrderSource interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error)
}

// ProductSource lists the catalog.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
}

// CustomerSource lists customers.
type CustomerSource interface {
	ListCustomers(ctx context.Context) ([]customer.Customer, error)
}

// StaffSource lists staff members.
type StaffSource interface {
	ListStaff(ctx context.Context) ([]staff.Member, error)
}

type generator func(e *Engine, ctx context.Context, p Params, w period.Window) (Table, error)

// registry binds every report kind to its generator.
var registry = map[Kind]generator{
	KindSales:      (*Engine).sales,
	KindCategories: (*Engine).categories,
	KindInventory:  (*Engine).inventory,
	KindCustomers:  (*Engine).customers,
	KindProducts:   (*Engine).products,
	KindPayments:   (*Engine).payments,
	KindStaff:      (*Engine).staff,
	KindDashboard:  (*Engine).dashboard,
}

// Kinds returns every registered report kind in lexical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to resolve named periods.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone of calendar boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// Engine generates reports. It holds no state between calls.
type Engine struct {
	orderSrc    OrderSource
	productSrc  ProductSource
	customerSrc CustomerSource
	staffSrc    StaffSource

	now func() time.Time
	loc *time.Location
}

// NewEngine returns an Engine reading from the given sources.
func NewEngine(orders OrderSource, products ProductSource, customers CustomerSource, staffs StaffSource, opts ...Option) *Engine {
	e := &Engine{
		orderSrc:    orders,
		productSrc:  products,
		customerSrc: customers,
		staffSrc:    staffs,
		now:         time.Now,
		loc:         time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate runs the report of the given kind.
func (e *Engine) Generate(ctx context.Context, kind Kind, p Params) (*Result, error) {
	gen, ok := registry[kind]
	if !ok {
		return nil, apperr.Wrap(apperr.Validation, ErrUnknownKind, "unknown report type "+strconv.Quote(string(kind)))
	}
	if p.GroupBy != "" && !p.GroupBy.Valid() {
		return nil, apperr.Newf(apperr.Validation, "unknown grouping %q", p.GroupBy)
	}
	if p.Limit < 0 {
		return nil, apperr.New(apperr.Validation, "limit must not be negative")
	}

	name, w, err := e.window(kind, p)
	if err != nil {
		return nil, err
	}

	data, err := gen(e, ctx, p, w)
	if err != nil {
		return nil, errors.Wrapf(err, "generate %s report", kind)
	}
	return &Result{Kind: kind, Period: name, Start: w.Start, End: w.End, Data: data}, nil
}

func (e *Engine) window(kind Kind, p Params) (period.Name, period.Window, error) {
	name := p.Period
	if name == "" {
		switch {
		case !p.Start.IsZero() || !p.End.IsZero():
			name = period.Custom
		case kind == KindDashboard:
			name = period.Today
		default:
			name = period.Month
		}
	}
	w, err := period.Resolve(name, e.now(), e.loc, p.Start, p.End)
	if err != nil {
		return "", period.Window{}, apperr.Wrap(apperr.Validation, err, err.Error())
	}
	return name, w, nil
}

// revenueOrders loads orders in w that count toward revenue.
func (e *Engine) revenueOrders(ctx context.Context, w period.Window) ([]order.Order, error) {
	all, err := e.orderSrc.ListCreatedBetween(ctx, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return filterRevenue(all), nil
}

func filterRevenue(all []order.Order) []order.Order {
	out := all[:0:0]
	for i := range all {
		if all[i].CountsAsRevenue() {
			out = append(out, all[i])
		}
	}
	// Stable input order keeps ties in ranked output deterministic.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number < out[j].Number
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Figures are the money metrics shared by every report.
type Figures struct {
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin decimal.Decimal `json:"profitMargin"`
}

func (f *Figures) add(revenue, cost decimal.Decimal) {
	f.Revenue = f.Revenue.Add(revenue)
	f.Cost = f.Cost.Add(cost)
}

// finish derives profit and margin. Margin is zero when revenue is zero.
func (f *Figures) finish() {
	f.Profit = f.Revenue.Sub(f.Cost)
	f.ProfitMargin = money.Ratio(f.Profit, f.Revenue)
}

func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2)
}

func amountCell(d decimal.Decimal) string { return d.StringFixed(2) }

func intCell(n int) string { return strconv.Itoa(n) }
