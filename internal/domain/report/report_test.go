package report

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

// --- Fixtures ---

var now = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeSource struct {
	orders     []order.Order
	products   []catalog.Product
	categories []catalog.Category
	customers  []customer.Customer
	staff      []staff.Member
	err        error
}

func (f *fakeSource) ListCreatedBetween(_ context.Context, from, to time.Time) ([]order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []order.Order
	for _, o := range f.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSource) ListProducts(context.Context) ([]catalog.Product, error) { return f.products, nil }

func (f *fakeSource) ListCategories(context.Context) ([]catalog.Category, error) {
	return f.categories, nil
}

func (f *fakeSource) ListCustomers(context.Context) ([]customer.Customer, error) {
	return f.customers, nil
}

func (f *fakeSource) ListStaff(context.Context) ([]staff.Member, error) { return f.staff, nil }

func line(productID, name, categoryID, price, cost string, qty int) order.Line {
	p := dec(price)
	return order.Line{
		ProductID:  productID,
		Name:       name,
		SKU:        "SKU-" + productID,
		CategoryID: categoryID,
		Price:      p,
		Cost:       dec(cost),
		Quantity:   qty,
		Total:      p.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func completed(number string, at time.Time, method order.PaymentMethod, cashier, customerID string, lines ...order.Line) order.Order {
	o := order.Order{
		ID:            "id-" + number,
		Number:        number,
		CustomerID:    customerID,
		Lines:         lines,
		Status:        order.StatusCompleted,
		PaymentStatus: order.PaymentPaid,
		Payment:       order.Payment{Method: method},
		Type:          order.TypeWalkIn,
		CashierID:     cashier,
		CreatedAt:     at,
	}
	for _, l := range lines {
		o.Subtotal = o.Subtotal.Add(l.Total)
		o.TotalCost = o.TotalCost.Add(l.Cost.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	o.TotalAmount = o.Subtotal
	return o
}

func fixture() *fakeSource {
	day := func(d, h int) time.Time { return time.Date(2024, time.March, d, h, 0, 0, 0, time.UTC) }

	refunded := completed("ORD-20240314-0002", day(14, 11), order.MethodCash, "s1", "c1",
		line("p1", "Latte", "drinks", "500", "100", 10))
	refunded.Status = order.StatusRefunded
	refunded.PaymentStatus = order.PaymentRefunded

	return &fakeSource{
		orders: []order.Order{
			completed("ORD-20240313-0001", day(13, 9), order.MethodCash, "s1", "c1",
				line("p1", "Latte", "drinks", "300", "100", 2),
				line("p2", "Croissant", "bakery", "200", "50", 1)),
			completed("ORD-20240314-0001", day(14, 10), order.MethodCard, "s2", "c2",
				line("p1", "Latte", "drinks", "300", "100", 1)),
			refunded,
			completed("ORD-20240315-0001", day(15, 8), order.MethodMobileMoney, "s1", "c1",
				line("p3", "Gift Card", "", "1000", "1000", 1)),
		},
		products: []catalog.Product{
			{ID: "p1", Name: "Latte", CategoryID: "drinks", Price: dec("300"), Cost: dec("100"), Stock: 50, LowStockAlert: 10, TrackInventory: true, IsActive: true},
			{ID: "p2", Name: "Croissant", CategoryID: "bakery", Price: dec("200"), Cost: dec("50"), Stock: 3, LowStockAlert: 5, TrackInventory: true, IsActive: true},
			{ID: "p4", Name: "Muffin", CategoryID: "bakery", Price: dec("150"), Cost: dec("40"), Stock: 0, LowStockAlert: 5, TrackInventory: true, IsActive: true},
			{ID: "p3", Name: "Gift Card", Price: dec("1000"), Cost: dec("1000"), TrackInventory: false, IsActive: true},
			{ID: "p5", Name: "Retired", Stock: 100, TrackInventory: true, IsActive: false},
		},
		categories: []catalog.Category{{ID: "drinks", Name: "Drinks"}, {ID: "bakery", Name: "Bakery"}},
		customers: []customer.Customer{
			{ID: "c1", Name: "Amina", TotalSpent: dec("25000"), CreatedAt: time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "c2", Name: "Brian", TotalSpent: dec("300"), CreatedAt: day(2, 9)},
			{ID: "c3", Name: "Chen", TotalSpent: dec("1000"), CreatedAt: day(10, 9)},
		},
		staff: []staff.Member{
			{ID: "s1", Name: "Wanjiru", Role: staff.RoleCashier},
			{ID: "s2", Name: "Otieno", Role: staff.RoleManager},
		},
	}
}

func newTestEngine(src *fakeSource) *Engine {
	return NewEngine(src, src, src, src, WithClock(func() time.Time { return now }))
}

// --- Tests ---

func TestGenerate_ZeroRevenueMargin(t *testing.T) {
	e := newTestEngine(&fakeSource{})

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			res, err := e.Generate(context.Background(), kind, Params{Period: period.Today})
			require.NoError(t, err)
			require.NotNil(t, res.Data)
		})
	}

	res, err := e.Generate(context.Background(), KindSales, Params{Period: period.Today})
	require.NoError(t, err)
	sales := res.Data.(*SalesReport)
	assert.True(t, sales.Summary.ProfitMargin.IsZero())
	assert.True(t, sales.Summary.AverageOrderValue.IsZero())
	require.Len(t, sales.Buckets, 1)
	assert.True(t, sales.Buckets[0].ProfitMargin.IsZero())
}

func TestGenerate_Validation(t *testing.T) {
	e := newTestEngine(fixture())

	tests := []struct {
		name string
		kind Kind
		p    Params
	}{
		{name: "unknown kind", kind: "weather"},
		{name: "unknown grouping", kind: KindSales, p: Params{GroupBy: "hour"}},
		{name: "unknown period", kind: KindSales, p: Params{Period: "decade"}},
		{name: "inverted custom range", kind: KindSales, p: Params{Start: now, End: now.AddDate(0, 0, -1)}},
		{name: "negative limit", kind: KindProducts, p: Params{Limit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Generate(context.Background(), tt.kind, tt.p)
			require.Error(t, err)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
		})
	}
}

func TestGenerate_DefaultWindow(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindSales, Params{})
	require.NoError(t, err)
	assert.Equal(t, period.Month, res.Period)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), res.Start)

	res, err = e.Generate(context.Background(), KindDashboard, Params{})
	require.NoError(t, err)
	assert.Equal(t, period.Today, res.Period)
}

func TestGenerate_SourceError(t *testing.T) {
	src := fixture()
	src.err = errors.New("connection refused")
	e := newTestEngine(src)

	_, err := e.Generate(context.Background(), KindDashboard, Params{Period: period.Week})
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestSales_ByDay(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindSales, Params{Period: period.Week, GroupBy: ByDay})
	require.NoError(t, err)
	r := res.Data.(*SalesReport)

	// Refunded orders never count as revenue.
	assert.Equal(t, 3, r.Summary.Orders)
	assert.True(t, dec("2100").Equal(r.Summary.Revenue), r.Summary.Revenue.String())
	assert.True(t, dec("1350").Equal(r.Summary.Cost), r.Summary.Cost.String())
	assert.True(t, dec("750").Equal(r.Summary.Profit))
	assert.True(t, dec("35.71").Equal(r.Summary.ProfitMargin), r.Summary.ProfitMargin.String())
	assert.True(t, dec("700").Equal(r.Summary.AverageOrderValue))

	require.Len(t, r.Buckets, 7, "every day of the week is present")
	assert.Equal(t, "2024-03-09", r.Buckets[0].Key)
	assert.Equal(t, "2024-03-15", r.Buckets[6].Key)
	assert.Equal(t, 0, r.Buckets[0].Orders)
	assert.Equal(t, 1, r.Buckets[5].Orders)
	assert.True(t, dec("300").Equal(r.Buckets[5].Revenue))
}

func TestSales_ByWeekAndMonth(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindSales, Params{Period: period.Year, GroupBy: ByWeek})
	require.NoError(t, err)
	r := res.Data.(*SalesReport)
	require.Len(t, r.Buckets, 1)
	assert.Equal(t, "2024-W11", r.Buckets[0].Key)

	res, err = e.Generate(context.Background(), KindSales, Params{Period: period.Year, GroupBy: ByMonth})
	require.NoError(t, err)
	r = res.Data.(*SalesReport)
	require.Len(t, r.Buckets, 1)
	assert.Equal(t, "2024-03", r.Buckets[0].Key)
	assert.Equal(t, 3, r.Buckets[0].Orders)
}

func TestSales_ByCategory(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindSales, Params{Period: period.Week, GroupBy: ByCategory})
	require.NoError(t, err)
	r := res.Data.(*SalesReport)

	require.Len(t, r.Buckets, 3)
	assert.Equal(t, "Uncategorized", r.Buckets[0].Label)
	assert.Equal(t, "Drinks", r.Buckets[1].Label)
	assert.True(t, dec("900").Equal(r.Buckets[1].Revenue))
	assert.Equal(t, 2, r.Buckets[1].Orders)
	assert.Equal(t, "Bakery", r.Buckets[2].Label)
}

func TestCategories(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindCategories, Params{Period: period.Week})
	require.NoError(t, err)
	r := res.Data.(*CategoryReport)

	assert.True(t, dec("2100").Equal(r.Revenue))
	require.Len(t, r.Categories, 3)
	drinks := r.Categories[1]
	assert.Equal(t, "drinks", drinks.ID)
	assert.Equal(t, 3, drinks.Quantity)
	assert.True(t, dec("42.86").Equal(drinks.Share), drinks.Share.String())
	assert.True(t, dec("66.67").Equal(drinks.ProfitMargin), drinks.ProfitMargin.String())
}

func TestProducts_RankedAndLimited(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindProducts, Params{Period: period.Week, Limit: 2})
	require.NoError(t, err)
	r := res.Data.(*ProductReport)

	require.Len(t, r.Products, 2)
	assert.Equal(t, "p3", r.Products[0].ID)
	assert.True(t, r.Products[0].ProfitMargin.IsZero())
	assert.Equal(t, "p1", r.Products[1].ID)
	assert.Equal(t, 3, r.Products[1].Quantity)
	assert.Equal(t, 2, r.Products[1].Orders)
	assert.Equal(t, "SKU-p1", r.Products[1].SKU)
}

func TestInventory(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindInventory, Params{})
	require.NoError(t, err)
	r := res.Data.(*InventoryReport)

	assert.Equal(t, 4, r.TotalProducts)
	assert.Equal(t, 3, r.TrackedProducts)
	assert.Equal(t, 1, r.InStock)
	assert.Equal(t, 1, r.LowStock)
	assert.Equal(t, 1, r.OutOfStock)
	assert.True(t, dec("5150").Equal(r.CostValue), r.CostValue.String())
	assert.True(t, dec("15600").Equal(r.RetailValue), r.RetailValue.String())

	require.Len(t, r.Items, 3)
	assert.Equal(t, OutOfStock, r.Items[0].Status)
	assert.Equal(t, LowStock, r.Items[1].Status)
	assert.Equal(t, "Bakery", r.Items[1].Category)
	assert.Equal(t, InStock, r.Items[2].Status)
}

func TestCustomers(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindCustomers, Params{Period: period.Month})
	require.NoError(t, err)
	r := res.Data.(*CustomerReport)

	assert.Equal(t, 3, r.TotalCustomers)
	assert.Equal(t, 2, r.NewCustomers)
	assert.Equal(t, 2, r.ActiveCustomers)
	assert.Equal(t, 1, r.RepeatCustomers)
	assert.Equal(t, []Cohort{{Month: "2024-03", Customers: 2}}, r.Acquisition)

	counts := make(map[string]int)
	for _, b := range r.LifetimeValue {
		counts[b.Label] = b.Customers
	}
	assert.Equal(t, map[string]int{"<1000": 1, "1000-4999": 1, "5000-19999": 0, ">=20000": 1}, counts)
	assert.Nil(t, r.LifetimeValue[3].Max)

	require.Len(t, r.TopSpenders, 2)
	assert.Equal(t, "Amina", r.TopSpenders[0].Name)
	assert.True(t, dec("1800").Equal(r.TopSpenders[0].Spent))
	assert.Equal(t, 2, r.TopSpenders[0].Orders)
}

func TestPayments(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindPayments, Params{Period: period.Week})
	require.NoError(t, err)
	r := res.Data.(*PaymentReport)

	require.Len(t, r.Methods, len(order.Methods))
	byMethod := make(map[order.PaymentMethod]MethodBreakdown)
	for _, m := range r.Methods {
		byMethod[m.Method] = m
	}
	assert.True(t, dec("38.1").Equal(byMethod[order.MethodCash].Share), byMethod[order.MethodCash].Share.String())
	assert.True(t, dec("47.62").Equal(byMethod[order.MethodMobileMoney].Share))
	assert.Equal(t, 0, byMethod[order.MethodCredit].Orders)
	assert.True(t, byMethod[order.MethodCredit].Share.IsZero())
}

func TestStaff(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindStaff, Params{Period: period.Week})
	require.NoError(t, err)
	r := res.Data.(*StaffReport)

	require.Len(t, r.Staff, 2)
	top := r.Staff[0]
	assert.Equal(t, "Wanjiru", top.Name)
	assert.Equal(t, staff.RoleCashier, top.Role)
	assert.Equal(t, 2, top.Orders)
	assert.Equal(t, 4, top.ItemsSold)
	assert.True(t, dec("2").Equal(top.ItemsPerOrder))
	assert.True(t, dec("900").Equal(top.AverageOrderValue))
}

func TestDashboard(t *testing.T) {
	e := newTestEngine(fixture())

	res, err := e.Generate(context.Background(), KindDashboard, Params{Period: period.Week})
	require.NoError(t, err)
	d := res.Data.(*Dashboard)

	assert.Equal(t, 3, d.Summary.Orders)
	assert.Len(t, d.Trend, 7)
	assert.Len(t, d.TopProducts, 3)
	assert.Len(t, d.Payments, len(order.Methods))
	assert.Equal(t, 1, d.Inventory.LowStock)
	assert.Equal(t, 1, d.Customers.New)
	assert.Equal(t, 2, d.Customers.Active)

	yearly, err := e.Generate(context.Background(), KindDashboard, Params{Period: period.Year})
	require.NoError(t, err)
	assert.Len(t, yearly.Data.(*Dashboard).Trend, 1, "long windows trend by month")
}

func TestGenerate_Deterministic(t *testing.T) {
	e := newTestEngine(fixture())

	for _, kind := range Kinds() {
		first, err := e.Generate(context.Background(), kind, Params{Period: period.Month})
		require.NoError(t, err)
		second, err := e.Generate(context.Background(), kind, Params{Period: period.Month})
		require.NoError(t, err)
		assert.Equal(t, first, second, kind)
	}
}
