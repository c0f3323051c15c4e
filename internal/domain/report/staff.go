package report

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

// StaffPerformance is the revenue rung up by one cashier.
type StaffPerformance struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Role              staff.Role      `json:"role"`
	Orders            int             `json:"orders"`
	ItemsSold         int             `json:"itemsSold"`
	ItemsPerOrder     decimal.Decimal `json:"itemsPerOrder"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	Figures
}

// StaffReport ranks cashiers by revenue.
type StaffReport struct {
	Staff []StaffPerformance `json:"staff"`
}

func (r *StaffReport) Columns() []Column {
	return []Column{
		{Name: "staff_id"}, {Name: "name"}, {Name: "role"},
		{Name: "orders", Numeric: true}, {Name: "items_sold", Numeric: true},
		{Name: "items_per_order", Numeric: true}, {Name: "average_order_value", Numeric: true},
		{Name: "revenue", Numeric: true}, {Name: "profit", Numeric: true},
		{Name: "profit_margin", Numeric: true},
	}
}

func (r *StaffReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Staff))
	for _, s := range r.Staff {
		rows = append(rows, []string{
			s.ID, s.Name, string(s.Role), intCell(s.Orders), intCell(s.ItemsSold),
			amountCell(s.ItemsPerOrder), amountCell(s.AverageOrderValue),
			amountCell(s.Revenue), amountCell(s.Profit), amountCell(s.ProfitMargin),
		})
	}
	return rows
}

func (e *Engine) staff(ctx context.Context, _ Params, w period.Window) (Table, error) {
	orders, err := e.revenueOrders(ctx, w)
	if err != nil {
		return nil, err
	}
	members, err := e.staffSrc.ListStaff(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list staff")
	}
	return buildStaff(members, orders), nil
}

func buildStaff(members []staff.Member, orders []order.Order) *StaffReport {
	byID := make(map[string]staff.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	perf := make(map[string]*StaffPerformance)
	for i := range orders {
		o := &orders[i]
		s, ok := perf[o.CashierID]
		if !ok {
			s = &StaffPerformance{ID: o.CashierID, Name: o.CashierName}
			if m, ok := byID[o.CashierID]; ok {
				s.Name = m.Name
				s.Role = m.Role
			}
			if s.Name == "" {
				s.Name = o.CashierID
			}
			perf[o.CashierID] = s
		}
		s.Orders++
		s.ItemsSold += o.ItemCount()
		s.add(o.TotalAmount, o.TotalCost)
	}

	r := &StaffReport{Staff: make([]StaffPerformance, 0, len(perf))}
	for _, s := range perf {
		s.finish()
		s.AverageOrderValue = average(s.Revenue, s.Orders)
		s.ItemsPerOrder = average(decimal.NewFromInt(int64(s.ItemsSold)), s.Orders)
		r.Staff = append(r.Staff, *s)
	}
	sort.Slice(r.Staff, func(i, j int) bool {
		if c := r.Staff[i].Revenue.Cmp(r.Staff[j].Revenue); c != 0 {
			return c > 0
		}
		return r.Staff[i].ID < r.Staff[j].ID
	})
	return r
}
