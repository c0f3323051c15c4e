package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
)

// Sentinel errors for checkout and lifecycle validation.
var (
	ErrEmptyCart          = apperr.New(apperr.Validation, "order must contain at least one item")
	ErrPaymentRequired    = apperr.New(apperr.Validation, "payment method and amount are required")
	ErrInvalidMethod      = apperr.New(apperr.Validation, "unsupported payment method")
	ErrInvalidType        = apperr.New(apperr.Validation, "unsupported order type")
	ErrCashierRequired    = apperr.New(apperr.Validation, "cashier is required")
	ErrInvalidStatus      = apperr.New(apperr.Validation, "invalid order status")
	ErrNegativeTotal      = apperr.New(apperr.Validation, "discount exceeds order value")
	ErrInvalidRefund      = apperr.New(apperr.Validation, "refund amount must be positive")
	ErrNotFound           = apperr.New(apperr.NotFound, "order not found")
	ErrCustomerNotFound   = apperr.New(apperr.NotFound, "customer not found")
	ErrRefundExceedsTotal = apperr.New(apperr.RefundExceedsTotal, "refund amount exceeds order total")
	ErrNotRefundable      = apperr.New(apperr.InvalidState, "only paid orders can be refunded")
)

// InvalidItemError indicates a malformed cart line.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ProductID, e.Reason)
}

func (e *InvalidItemError) Kind() apperr.Kind { return apperr.Validation }

// ProductNotFoundError indicates a cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Kind() apperr.Kind { return apperr.NotFound }

// InactiveProductError indicates a cart line references a deactivated product.
type InactiveProductError struct {
	ProductID   string
	ProductName string
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("product %s is not available for sale", e.ProductName)
}

func (e *InactiveProductError) Kind() apperr.Kind { return apperr.InvalidState }

// InsufficientStockError indicates a tracked product cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.InsufficientStock }

// PaymentInsufficientError indicates the tendered amount is below the total.
type PaymentInsufficientError struct {
	Total    decimal.Decimal
	Tendered decimal.Decimal
}

func (e *PaymentInsufficientError) Error() string {
	return fmt.Sprintf("payment of %s is less than order total %s", e.Tendered, e.Total)
}

func (e *PaymentInsufficientError) Kind() apperr.Kind { return apperr.PaymentInsufficient }

// StaffNotFoundError indicates an order references an unknown staff member.
type StaffNotFoundError struct {
	StaffID string
}

func (e *StaffNotFoundError) Error() string {
	return fmt.Sprintf("staff member %s not found", e.StaffID)
}

func (e *StaffNotFoundError) Kind() apperr.Kind { return apperr.NotFound }
