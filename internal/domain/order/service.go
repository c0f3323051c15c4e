package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
	"github.com/xenking/pos-backoffice/internal/events"
)

// Item is one requested cart line. Price and discount are trusted as
// supplied by the register.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Discount  decimal.Decimal
}

// PaymentIntent is the canonical payment input of a checkout.
type PaymentIntent struct {
	Method        PaymentMethod
	Amount        decimal.NullDecimal
	TransactionID string
}

// CheckoutRequest holds the input for creating an order.
type CheckoutRequest struct {
	Items      []Item
	Payment    PaymentIntent
	CustomerID string
	CashierID  string

	Type            Type
	TableNumber     string
	DeliveryAddress string

	// TaxRate is a percentage; unset means the store default.
	TaxRate decimal.NullDecimal
	// IsTaxable defaults to true.
	IsTaxable *bool
	// TaxAmount overrides the computed tax when set.
	TaxAmount      decimal.NullDecimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	Notes          string
}

// DefaultPublishTimeout is the publish bound used unless overridden.
const DefaultPublishTimeout = 2 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout bounds how long a single event publish may block the
// request that triggered it. Non-positive values keep the default.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service implements checkout, the order lifecycle and order queries.
type Service struct {
	orders    Repository
	catalog   catalog.Store
	customers customer.Store
	tx        TxManager
	settings  *settings.Resolver
	numberer  *Numberer
	publisher events.Publisher

	publishTimeout time.Duration
	now            func() time.Time
	loc            *time.Location
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer    trace.Tracer
	checkouts metric.Int64Counter
}

// NewService creates an order Service with the required collaborators.
func NewService(
	orders Repository,
	products catalog.Store,
	customers customer.Store,
	tx TxManager,
	resolver *settings.Resolver,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		orders:         orders,
		catalog:        products,
		customers:      customers,
		tx:             tx,
		settings:       resolver,
		publisher:      events.Nop{},
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
		loc:            time.UTC,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.numberer = NewNumberer(orders, s.loc)
	s.tracer = s.tracerProvider.Tracer("pos/order")

	var err error
	s.checkouts, err = s.meterProvider.Meter("pos/order").Int64Counter("pos.checkouts",
		metric.WithDescription("Checkouts by result and order type"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout counter")
	}
	return s, nil
}

// CreateOrder validates the cart against the catalog, prices it, and
// persists the order together with stock decrements and customer aggregate
// updates in one unit of work.
func (s *Service) CreateOrder(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer func() {
		result := "ok"
		if rerr != nil {
			result = string(apperr.KindOf(rerr))
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.checkouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", result),
			attribute.String("order_type", string(req.Type)),
		))
		span.End()
	}()

	if err := validateCheckout(&req); err != nil {
		return nil, err
	}

	format := s.settings.CurrencyFormat(ctx)
	rate := s.settings.TaxDefaults(ctx).Rate
	if req.TaxRate.Valid {
		rate = req.TaxRate.Decimal
	}
	now := s.now()

	var o *Order
	if err := s.tx.Do(ctx, func(ctx context.Context) error {
		created, err := s.checkout(ctx, req, rate, format, now)
		if err != nil {
			return err
		}
		o = created
		return nil
	}); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", o.Number))

	s.publish(ctx, events.OrderCreated, o)
	return s.reload(ctx, o), nil
}

func validateCheckout(req *CheckoutRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyCart
	}
	if req.Payment.Method == "" || !req.Payment.Amount.Valid {
		return ErrPaymentRequired
	}
	if !req.Payment.Method.Valid() {
		return ErrInvalidMethod
	}
	if req.Payment.Amount.Decimal.IsNegative() {
		return apperr.New(apperr.Validation, "payment amount must not be negative")
	}
	if req.CashierID == "" {
		return ErrCashierRequired
	}
	if req.Type == "" {
		req.Type = TypeWalkIn
	}
	if !req.Type.Valid() {
		return ErrInvalidType
	}

	for _, item := range req.Items {
		switch {
		case item.ProductID == "":
			return &InvalidItemError{Reason: "product id is required"}
		case item.Quantity < 1:
			return &InvalidItemError{ProductID: item.ProductID, Reason: "quantity must be at least 1"}
		case item.Price.IsNegative():
			return &InvalidItemError{ProductID: item.ProductID, Reason: "price must not be negative"}
		case item.Discount.IsNegative():
			return &InvalidItemError{ProductID: item.ProductID, Reason: "discount must not be negative"}
		case item.Discount.GreaterThan(item.Price.Mul(money.Qty(item.Quantity))):
			return &InvalidItemError{ProductID: item.ProductID, Reason: "discount exceeds line value"}
		}
	}

	for name, v := range map[string]decimal.Decimal{
		"discount amount": req.DiscountAmount,
		"shipping amount": req.ShippingAmount,
		"tax rate":        req.TaxRate.Decimal,
		"tax amount":      req.TaxAmount.Decimal,
	} {
		if v.IsNegative() {
			return apperr.Newf(apperr.Validation, "%s must not be negative", name)
		}
	}
	return nil
}

// checkout runs inside the unit of work. Any error aborts it.
func (s *Service) checkout(
	ctx context.Context,
	req CheckoutRequest,
	rate decimal.Decimal,
	format money.Format,
	now time.Time,
) (*Order, error) {
	o := &Order{
		ID:              uuid.NewString(),
		Type:            req.Type,
		TableNumber:     req.TableNumber,
		DeliveryAddress: req.DeliveryAddress,
		CashierID:       req.CashierID,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if req.CustomerID != "" {
		c, err := s.customers.FindCustomer(ctx, req.CustomerID)
		if errors.Is(err, customer.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "find customer")
		}
		o.CustomerID = c.ID
		o.CustomerName = c.Name
		o.CustomerPhone = c.Phone
		o.CustomerEmail = c.Email
	}

	lines, tracked, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	o.Lines = lines

	if err := applyTotals(o, req, rate, format); err != nil {
		return nil, err
	}
	if req.Payment.Amount.Decimal.LessThan(o.TotalAmount) {
		return nil, &PaymentInsufficientError{Total: o.TotalAmount, Tendered: req.Payment.Amount.Decimal}
	}

	paidAt := now
	o.Payment = Payment{
		Method:        req.Payment.Method,
		Amount:        req.Payment.Amount.Decimal,
		TransactionID: req.Payment.TransactionID,
		Status:        ChargeCompleted,
		PaidAt:        &paidAt,
	}
	o.PaymentStatus = PaymentPaid
	o.Status = StatusConfirmed
	if o.Type == TypeWalkIn {
		o.Status = StatusCompleted
	}

	o.Number = s.numberer.Next(ctx, now)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	for _, l := range o.Lines {
		if !tracked[l.ProductID] {
			continue
		}
		if err := s.catalog.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock of %s", l.ProductID)
		}
	}

	if o.CustomerID != "" {
		if err := s.customers.RecordOrder(ctx, o.CustomerID, o.TotalAmount, now); err != nil {
			return nil, errors.Wrap(err, "record customer order")
		}
	}
	return o, nil
}

// priceLines snapshots every cart item against the catalog and checks
// availability. Quantities of repeated products are checked together.
func (s *Service) priceLines(ctx context.Context, items []Item) ([]Line, map[string]bool, error) {
	lines := make([]Line, 0, len(items))
	tracked := make(map[string]bool, len(items))
	requested := make(map[string]int, len(items))

	for _, item := range items {
		p, err := s.catalog.FindProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "find product %s", item.ProductID)
		}
		if !p.IsActive {
			return nil, nil, &InactiveProductError{ProductID: p.ID, ProductName: p.Name}
		}

		requested[p.ID] += item.Quantity
		if p.TrackInventory && p.Stock < requested[p.ID] {
			return nil, nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   requested[p.ID],
			}
		}
		tracked[p.ID] = p.TrackInventory

		qty := money.Qty(item.Quantity)
		lines = append(lines, Line{
			ProductID:  p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			CategoryID: p.CategoryID,
			Price:      item.Price,
			Cost:       p.Cost,
			Quantity:   item.Quantity,
			Discount:   item.Discount,
			Total:      item.Price.Mul(qty).Sub(item.Discount),
		})
	}
	return lines, tracked, nil
}

// applyTotals computes subtotal, tax and total so that
// total == subtotal + tax + shipping - discount holds exactly.
func applyTotals(o *Order, req CheckoutRequest, rate decimal.Decimal, format money.Format) error {
	subtotal := decimal.Zero
	cost := decimal.Zero
	for _, l := range o.Lines {
		subtotal = subtotal.Add(l.Total)
		cost = cost.Add(l.Cost.Mul(money.Qty(l.Quantity)))
	}

	taxable := req.IsTaxable == nil || *req.IsTaxable
	tax := decimal.Zero
	if taxable {
		tax = format.Round(money.Percent(subtotal, rate))
	}
	if req.TaxAmount.Valid {
		tax = req.TaxAmount.Decimal
	}

	total := subtotal.Add(tax).Add(req.ShippingAmount).Sub(req.DiscountAmount)
	if total.IsNegative() {
		return ErrNegativeTotal
	}

	o.Subtotal = subtotal
	o.TaxRate = rate
	o.IsTaxable = taxable
	o.TaxAmount = tax
	o.DiscountAmount = req.DiscountAmount
	o.ShippingAmount = req.ShippingAmount
	o.TotalAmount = total
	o.TotalCost = cost
	return nil
}

// publish runs after commit. A canceled request does not stop it, but a slow
// broker only holds the response for publishTimeout.
func (s *Service) publish(ctx context.Context, typ events.Type, o *Order) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	err := s.publisher.Publish(pctx, events.Event{
		Type:          typ,
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Amount:        o.TotalAmount,
		CashierID:     o.CashierID,
		At:            s.now(),
	})
	if err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("event", string(typ)),
			zap.String("order_number", o.Number),
			zap.Error(err),
		)
	}
}

// reload re-reads a committed order so that customer and staff names are
// populated. The in-memory copy is returned if the read fails.
func (s *Service) reload(ctx context.Context, o *Order) *Order {
	full, err := s.orders.Get(ctx, o.ID)
	if err != nil {
		zctx.From(ctx).Warn("Reload order", zap.String("order_id", o.ID), zap.Error(err))
		return o
	}
	return full
}
