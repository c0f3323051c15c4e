package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/period"
)

// Page sizes for ListOrders.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

const dateLayout = "2006-01-02"

// Page is one page of orders.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// MethodShare is the revenue attributed to one payment method.
type MethodShare struct {
	Method  PaymentMethod   `json:"method"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
	Share   decimal.Decimal `json:"share"`
}

// Stats summarizes orders created in a period. Money figures cover
// completed, paid orders only.
type Stats struct {
	Period            period.Name     `json:"period"`
	Start             string          `json:"start"`
	End               string          `json:"end"`
	TotalOrders       int             `json:"totalOrders"`
	ByStatus          map[Status]int  `json:"byStatus"`
	CompletedOrders   int             `json:"completedOrders"`
	Revenue           decimal.Decimal `json:"revenue"`
	Cost              decimal.Decimal `json:"cost"`
	Profit            decimal.Decimal `json:"profit"`
	ProfitMargin      decimal.Decimal `json:"profitMargin"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	RefundedAmount    decimal.Decimal `json:"refundedAmount"`
	ByPaymentMethod   []MethodShare   `json:"byPaymentMethod"`
}

// TodaySummary is the register view of the current day.
type TodaySummary struct {
	Date            string          `json:"date"`
	Orders          int             `json:"orders"`
	CompletedOrders int             `json:"completedOrders"`
	Revenue         decimal.Decimal `json:"revenue"`
	ItemsSold       int             `json:"itemsSold"`
	ByType          map[Type]int    `json:"byType"`
	OpenOrders      int             `json:"openOrders"`
}

// GetOrder returns an order by id or order number.
func (s *Service) GetOrder(ctx context.Context, ref string) (*Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.orders.Get(ctx, ref)
}

// ListOrders returns one page of orders matching f, newest first. Pages are
// 1-based; limit is clamped to MaxPageSize.
func (s *Service) ListOrders(ctx context.Context, f Filter, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, ErrInvalidType
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, apperr.Wrap(apperr.Validation, period.ErrInvalidRange, "from must be before to")
	}
	f.Offset = (page - 1) * limit
	f.Limit = limit

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// GetOrderStats aggregates orders created in the named period.
func (s *Service) GetOrderStats(ctx context.Context, name period.Name) (*Stats, error) {
	if name == period.Custom {
		return nil, apperr.New(apperr.Validation, "custom period is not supported for order stats")
	}
	w, err := period.Resolve(name, s.now(), s.loc, time.Time{}, time.Time{})
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "unknown period")
	}
	if name == "" {
		name = period.Today
	}

	orders, err := s.orders.ListCreatedBetween(ctx, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	st := &Stats{
		Period:      name,
		Start:       w.Start.Format(dateLayout),
		End:         w.End.AddDate(0, 0, -1).Format(dateLayout),
		TotalOrders: len(orders),
		ByStatus:    make(map[Status]int),
	}
	byMethod := make(map[PaymentMethod]*MethodShare)
	for i := range orders {
		o := &orders[i]
		st.ByStatus[o.Status]++
		st.RefundedAmount = st.RefundedAmount.Add(o.RefundedAmount)
		if !o.CountsAsRevenue() {
			continue
		}
		st.CompletedOrders++
		st.Revenue = st.Revenue.Add(o.TotalAmount)
		st.Cost = st.Cost.Add(o.TotalCost)

		m, ok := byMethod[o.Payment.Method]
		if !ok {
			m = &MethodShare{Method: o.Payment.Method}
			byMethod[o.Payment.Method] = m
		}
		m.Orders++
		m.Revenue = m.Revenue.Add(o.TotalAmount)
	}

	st.Profit = st.Revenue.Sub(st.Cost)
	st.ProfitMargin = money.Ratio(st.Profit, st.Revenue)
	if st.CompletedOrders > 0 {
		st.AverageOrderValue = st.Revenue.Div(decimal.NewFromInt(int64(st.CompletedOrders))).Round(2)
	}
	for _, method := range Methods {
		m, ok := byMethod[method]
		if !ok {
			continue
		}
		m.Share = money.Ratio(m.Revenue, st.Revenue)
		st.ByPaymentMethod = append(st.ByPaymentMethod, *m)
	}
	return st, nil
}

// GetTodaySummary summarizes orders created since the start of the current
// day.
func (s *Service) GetTodaySummary(ctx context.Context) (*TodaySummary, error) {
	w := period.Day(s.now(), s.loc)
	orders, err := s.orders.ListCreatedBetween(ctx, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	sum := &TodaySummary{
		Date:   w.Start.Format(dateLayout),
		Orders: len(orders),
		ByType: make(map[Type]int, len(Types)),
	}
	for _, t := range Types {
		sum.ByType[t] = 0
	}
	for i := range orders {
		o := &orders[i]
		sum.ByType[o.Type]++
		switch o.Status {
		case StatusPending, StatusConfirmed, StatusProcessing, StatusReady:
			sum.OpenOrders++
		}
		if !o.CountsAsRevenue() {
			continue
		}
		sum.CompletedOrders++
		sum.Revenue = sum.Revenue.Add(o.TotalAmount)
		sum.ItemsSold += o.ItemCount()
	}
	return sum, nil
}
