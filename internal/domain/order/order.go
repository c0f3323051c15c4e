package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusReady,
		StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// PaymentStatus is the financial state of an order.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentFailed        PaymentStatus = "failed"
)

// PaymentMethod is how the customer tendered payment.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCredit       PaymentMethod = "credit"
)

// Methods lists every accepted payment method in display order.
var Methods = []PaymentMethod{MethodCash, MethodCard, MethodMobileMoney, MethodBankTransfer, MethodCredit}

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	for _, v := range Methods {
		if m == v {
			return true
		}
	}
	return false
}

// ChargeStatus is the state of the embedded payment record.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeCompleted ChargeStatus = "completed"
	ChargeFailed    ChargeStatus = "failed"
	ChargeRefunded  ChargeStatus = "refunded"
)

// Type distinguishes register sales from orders fulfilled later.
type Type string

const (
	TypeWalkIn   Type = "walk-in"
	TypeDelivery Type = "delivery"
	TypePickup   Type = "pickup"
)

// Types lists every order type.
var Types = []Type{TypeWalkIn, TypeDelivery, TypePickup}

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeWalkIn || t == TypeDelivery || t == TypePickup
}

// Line is a snapshot of a product at the moment of sale. It is never
// modified after the order is persisted.
type Line struct {
	ProductID  string          `json:"productId"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID string          `json:"categoryId,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
	Quantity   int             `json:"quantity"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
}

// Payment is the payment captured at checkout.
type Payment struct {
	Method        PaymentMethod
	Amount        decimal.Decimal
	TransactionID string
	Status        ChargeStatus
	PaidAt        *time.Time
}

// Order is the checkout aggregate.
type Order struct {
	ID     string
	Number string

	CustomerID    string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string

	Lines []Line

	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	IsTaxable      bool
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	TotalCost      decimal.Decimal
	RefundedAmount decimal.Decimal

	Status        Status
	PaymentStatus PaymentStatus
	Payment       Payment

	Type            Type
	TableNumber     string
	DeliveryAddress string

	CashierID      string
	CashierName    string
	PreparedByID   string
	PreparedByName string
	ServedByID     string
	ServedByName   string

	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profit is the total amount minus the total cost.
func (o *Order) Profit() decimal.Decimal {
	return o.TotalAmount.Sub(o.TotalCost)
}

// ItemCount is the number of units sold across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// CountsAsRevenue reports whether the order contributes to revenue figures.
func (o *Order) CountsAsRevenue() bool {
	return o.Status == StatusCompleted && o.PaymentStatus == PaymentPaid
}

func (o *Order) appendNote(note string) {
	if o.Notes == "" {
		o.Notes = note
		return
	}
	o.Notes += "\n" + note
}

// Filter narrows ListOrders. Zero fields do not filter.
type Filter struct {
	Status        Status
	PaymentStatus PaymentStatus
	Type          Type
	CustomerID    string
	CashierID     string
	From          time.Time
	To            time.Time
	// Search matches an order number prefix.
	Search string

	Offset int
	Limit  int
}

// Counter counts orders created in [from, to).
type Counter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Repository defines persistence operations for orders. Methods join the
// unit of work carried by ctx, if any.
type Repository interface {
	Counter

	Create(ctx context.Context, o *Order) error
	// Get resolves an order by id or order number and populates staff and
	// customer names.
	Get(ctx context.Context, ref string) (*Order, error)
	// GetForUpdate is Get with the row locked until the unit of work ends.
	GetForUpdate(ctx context.Context, ref string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, f Filter) ([]Order, int, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error)
}

// TxManager runs fn as one atomic unit of work. The transaction travels in
// the context passed to fn. Any error returned by fn rolls everything back.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
