package report

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
)

// Cohort counts customers acquired in one calendar month.
type Cohort struct {
	Month     string `json:"month"`
	Customers int    `json:"customers"`
}

// ValueBucket counts customers whose lifetime spend falls in [Min, Max).
// The last bucket has no upper bound.
type ValueBucket struct {
	Label     string           `json:"label"`
	Min       decimal.Decimal  `json:"min"`
	Max       *decimal.Decimal `json:"max"`
	Customers int              `json:"customers"`
}

// CustomerSpend is a customer's revenue within the window.
type CustomerSpend struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Orders int             `json:"orders"`
	Spent  decimal.Decimal `json:"spent"`
}

// CustomerReport covers acquisition, lifetime value and top spenders.
type CustomerReport struct {
	TotalCustomers       int             `json:"totalCustomers"`
	NewCustomers         int             `json:"newCustomers"`
	ActiveCustomers      int             `json:"activeCustomers"`
	RepeatCustomers      int             `json:"repeatCustomers"`
	AverageLifetimeValue decimal.Decimal `json:"averageLifetimeValue"`
	Acquisition          []Cohort        `json:"acquisition"`
	LifetimeValue        []ValueBucket   `json:"lifetimeValue"`
	TopSpenders          []CustomerSpend `json:"topSpenders"`
}

func (r *CustomerReport) Columns() []Column {
	return []Column{
		{Name: "section"}, {Name: "label"},
		{Name: "count", Numeric: true}, {Name: "amount", Numeric: true},
	}
}

func (r *CustomerReport) Rows() [][]string {
	rows := [][]string{
		{"summary", "total_customers", intCell(r.TotalCustomers), ""},
		{"summary", "new_customers", intCell(r.NewCustomers), ""},
		{"summary", "active_customers", intCell(r.ActiveCustomers), ""},
		{"summary", "repeat_customers", intCell(r.RepeatCustomers), ""},
		{"summary", "average_lifetime_value", "", amountCell(r.AverageLifetimeValue)},
	}
	for _, c := range r.Acquisition {
		rows = append(rows, []string{"acquisition", c.Month, intCell(c.Customers), ""})
	}
	for _, b := range r.LifetimeValue {
		rows = append(rows, []string{"lifetime_value", b.Label, intCell(b.Customers), ""})
	}
	for _, s := range r.TopSpenders {
		rows = append(rows, []string{"top_spender", s.Name, intCell(s.Orders), amountCell(s.Spent)})
	}
	return rows
}

// lifetimeBounds are the lower bounds of the lifetime value buckets.
var lifetimeBounds = []struct {
	label string
	min   int64
}{
	{label: "<1000", min: 0},
	{label: "1000-4999", min: 1000},
	{label: "5000-19999", min: 5000},
	{label: ">=20000", min: 20000},
}

func newValueBuckets() []ValueBucket {
	out := make([]ValueBucket, len(lifetimeBounds))
	for i, b := range lifetimeBounds {
		out[i] = ValueBucket{Label: b.label, Min: decimal.NewFromInt(b.min)}
		if i+1 < len(lifetimeBounds) {
			upper := decimal.NewFromInt(lifetimeBounds[i+1].min)
			out[i].Max = &upper
		}
	}
	return out
}

func (e *Engine) customers(ctx context.Context, p Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	customers, err := e.customerSrc.ListCustomers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	return buildCustomers(customers, orders, w, e.loc, p.Limit), nil
}

func buildCustomers(customers []customer.Customer, orders []order.Order, w period.Window, loc *time.Location, limit int) *CustomerReport {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	r := &CustomerReport{
		TotalCustomers: len(customers),
		Acquisition:    []Cohort{},
		LifetimeValue:  newValueBuckets(),
		TopSpenders:    []CustomerSpend{},
	}

	names := make(map[string]string, len(customers))
	cohorts := make(map[string]int)
	lifetime := decimal.Zero
	for _, c := range customers {
		names[c.ID] = c.Name
		lifetime = lifetime.Add(c.TotalSpent)

		if w.Contains(c.CreatedAt) {
			r.NewCustomers++
			cohorts[c.CreatedAt.In(loc).Format("2006-01")]++
		}
		for i := len(r.LifetimeValue) - 1; i >= 0; i-- {
			if c.TotalSpent.GreaterThanOrEqual(r.LifetimeValue[i].Min) {
				r.LifetimeValue[i].Customers++
				break
			}
		}
	}
	r.AverageLifetimeValue = average(lifetime, len(customers))

	for month, n := range cohorts {
		r.Acquisition = append(r.Acquisition, Cohort{Month: month, Customers: n})
	}
	sort.Slice(r.Acquisition, func(i, j int) bool { return r.Acquisition[i].Month < r.Acquisition[j].Month })

	spend := make(map[string]*CustomerSpend)
	for i := range orders {
		o := &orders[i]
		if o.CustomerID == "" {
			continue
		}
		s, ok := spend[o.CustomerID]
		if !ok {
			name := names[o.CustomerID]
			if name == "" {
				name = o.CustomerName
			}
			s = &CustomerSpend{ID: o.CustomerID, Name: name}
			spend[o.CustomerID] = s
		}
		s.Orders++
		s.Spent = s.Spent.Add(o.TotalAmount)
	}

	r.ActiveCustomers = len(spend)
	for _, s := range spend {
		if s.Orders > 1 {
			r.RepeatCustomers++
		}
		r.TopSpenders = append(r.TopSpenders, *s)
	}
	sort.Slice(r.TopSpenders, func(i, j int) bool {
		a, b := r.TopSpenders[i], r.TopSpenders[j]
		if c := a.Spent.Cmp(b.Spent); c != 0 {
			return c > 0
		}
		return a.ID < b.ID
	})
	if len(r.TopSpenders) > limit {
		r.TopSpenders = r.TopSpenders[:limit]
	}
	return r
}
