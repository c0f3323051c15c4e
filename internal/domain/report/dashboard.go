package report

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

const (
	dashboardTopProducts = 5
	dashboardTopStaff    = 5
	dailyTrendMaxDays    = 62
)

// InventorySnapshot is the stock headline of the dashboard.
type InventorySnapshot struct {
	TrackedProducts int             `json:"trackedProducts"`
	LowStock        int             `json:"lowStock"`
	OutOfStock      int             `json:"outOfStock"`
	CostValue       decimal.Decimal `json:"costValue"`
	RetailValue     decimal.Decimal `json:"retailValue"`
}

// CustomerSnapshot is the customer headline of the dashboard.
type CustomerSnapshot struct {
	Total  int `json:"total"`
	New    int `json:"new"`
	Active int `json:"active"`
}

// Dashboard bundles the headline figures of several reports for one period.
type Dashboard struct {
	Summary     SalesSummary         `json:"summary"`
	Trend       []SalesBucket        `json:"trend"`
	TopProducts []ProductPerformance `json:"topProducts"`
	Categories  []CategorySales      `json:"categories"`
	Payments    []MethodBreakdown    `json:"payments"`
	TopStaff    []StaffPerformance   `json:"topStaff"`
	Inventory   InventorySnapshot    `json:"inventory"`
	Customers   CustomerSnapshot     `json:"customers"`
}

func (d *Dashboard) Columns() []Column {
	return []Column{
		{Name: "section"}, {Name: "label"},
		{Name: "count", Numeric: true}, {Name: "amount", Numeric: true},
	}
}

func (d *Dashboard) Rows() [][]string {
	rows := [][]string{
		{"summary", "orders", intCell(d.Summary.Orders), ""},
		{"summary", "items_sold", intCell(d.Summary.ItemsSold), ""},
		{"summary", "revenue", "", amountCell(d.Summary.Revenue)},
		{"summary", "profit", "", amountCell(d.Summary.Profit)},
		{"summary", "profit_margin", "", amountCell(d.Summary.ProfitMargin)},
		{"summary", "average_order_value", "", amountCell(d.Summary.AverageOrderValue)},
	}
	for _, b := range d.Trend {
		rows = append(rows, []string{"trend", b.Key, intCell(b.Orders), amountCell(b.Revenue)})
	}
	for _, p := range d.TopProducts {
		rows = append(rows, []string{"top_product", p.Name, intCell(p.Quantity), amountCell(p.Revenue)})
	}
	for _, c := range d.Categories {
		rows = append(rows, []string{"category", c.Name, intCell(c.Quantity), amountCell(c.Revenue)})
	}
	for _, m := range d.Payments {
		rows = append(rows, []string{"payment", string(m.Method), intCell(m.Orders), amountCell(m.Revenue)})
	}
	for _, s := range d.TopStaff {
		rows = append(rows, []string{"top_staff", s.Name, intCell(s.Orders), amountCell(s.Revenue)})
	}
	rows = append(rows,
		[]string{"inventory", "low_stock", intCell(d.Inventory.LowStock), ""},
		[]string{"inventory", "out_of_stock", intCell(d.Inventory.OutOfStock), ""},
		[]string{"inventory", "retail_value", "", amountCell(d.Inventory.RetailValue)},
		[]string{"customers", "new", intCell(d.Customers.New), ""},
		[]string{"customers", "active", intCell(d.Customers.Active), ""},
	)
	return rows
}

// dashboard loads every source concurrently, then derives each section
// from the same snapshot.
func (e *Engine) dashboard(ctx context.Context, _ Params, w period.Window) (Table, error) {
	var (
		orders    []order.Order
		products  []catalog.Product
		names     map[string]string
		customers []customer.Customer
		members   []staff.Member
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		orders, err = e.revenueOrders(gctx, w)
		return err
	})
	g.Go(func() (err error) {
		if products, err = e.productSrc.ListProducts(gctx); err != nil {
			return errors.Wrap(err, "list products")
		}
		return nil
	})
	g.Go(func() (err error) {
		names, err = e.categoryNames(gctx)
		return err
	})
	g.Go(func() (err error) {
		if customers, err = e.customerSrc.ListCustomers(gctx); err != nil {
			return errors.Wrap(err, "list customers")
		}
		return nil
	})
	g.Go(func() (err error) {
		if members, err = e.staffSrc.ListStaff(gctx); err != nil {
			return errors.Wrap(err, "list staff")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildDashboard(orders, products, names, customers, members, w, e.loc), nil
}

func buildDashboard(
	orders []order.Order,
	products []catalog.Product,
	categoryNames map[string]string,
	customers []customer.Customer,
	members []staff.Member,
	w period.Window,
	loc *time.Location,
) *Dashboard {
	trend := ByDay
	if w.End.Sub(w.Start) > dailyTrendMaxDays*24*time.Hour {
		trend = ByMonth
	}

	inv := buildInventory(products, categoryNames)
	cust := buildCustomers(customers, orders, w, loc, 0)
	staffPerf := buildStaff(members, orders).Staff
	if len(staffPerf) > dashboardTopStaff {
		staffPerf = staffPerf[:dashboardTopStaff]
	}

	return &Dashboard{
		Summary:     summarize(orders),
		Trend:       timeBuckets(orders, trend, w, loc),
		TopProducts: buildProducts(orders, dashboardTopProducts).Products,
		Categories:  buildCategories(orders, categoryNames).Categories,
		Payments:    buildPayments(orders).Methods,
		TopStaff:    staffPerf,
		Inventory: InventorySnapshot{
			TrackedProducts: inv.TrackedProducts,
			LowStock:        inv.LowStock,
			OutOfStock:      inv.OutOfStock,
			CostValue:       inv.CostValue,
			RetailValue:     inv.RetailValue,
		},
		Customers: CustomerSnapshot{
			Total:  cust.TotalCustomers,
			New:    cust.NewCustomers,
			Active: cust.ActiveCustomers,
		},
	}
}
