package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/events"
)

// StatusUpdate is a requested status transition with optional staff
// assignment.
type StatusUpdate struct {
	Status     Status
	PreparedBy string
	ServedBy   string
}

// RefundRequest holds the input for a refund. An unset amount refunds the
// full order total.
type RefundRequest struct {
	Amount decimal.NullDecimal
	Reason string
}

// UpdateOrderStatus moves an order to a new status. Cancelling a paid order
// returns its tracked stock and marks the payment refunded; completing a
// cancelled order takes the stock again and marks it paid.
func (s *Service) UpdateOrderStatus(ctx context.Context, ref string, upd StatusUpdate) (*Order, error) {
	if !upd.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	var o *Order
	if err := s.tx.Do(ctx, func(ctx context.Context) error {
		cur, err := s.orders.GetForUpdate(ctx, ref)
		if err != nil {
			return err
		}

		switch {
		case upd.Status == StatusCancelled && cur.PaymentStatus == PaymentPaid:
			if err := s.adjustStock(ctx, cur, s.catalog.RestoreStock); err != nil {
				return err
			}
			cur.PaymentStatus = PaymentRefunded
			cur.Payment.Status = ChargeRefunded
		case upd.Status == StatusCompleted && cur.Status == StatusCancelled:
			// Availability is not re-checked; DecrementStock still floors at zero.
			if err := s.adjustStock(ctx, cur, s.catalog.DecrementStock); err != nil {
				return err
			}
			cur.PaymentStatus = PaymentPaid
			cur.Payment.Status = ChargeCompleted
		}

		cur.Status = upd.Status
		if upd.PreparedBy != "" {
			cur.PreparedByID = upd.PreparedBy
		}
		if upd.ServedBy != "" {
			cur.ServedByID = upd.ServedBy
		}
		cur.UpdatedAt = s.now()

		if err := s.orders.Update(ctx, cur); err != nil {
			return errors.Wrap(err, "update order")
		}
		o = cur
		return nil
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderStatusChanged, o)
	return s.reload(ctx, o), nil
}

// ProcessRefund refunds all or part of a paid order. Stock of every tracked
// line is returned regardless of the amount. Customer aggregates are left
// untouched.
func (s *Service) ProcessRefund(ctx context.Context, ref string, req RefundRequest) (*Order, error) {
	if req.Amount.Valid && !req.Amount.Decimal.IsPositive() {
		return nil, ErrInvalidRefund
	}
	format := s.settings.CurrencyFormat(ctx)

	var o *Order
	if err := s.tx.Do(ctx, func(ctx context.Context) error {
		cur, err := s.orders.GetForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if cur.PaymentStatus != PaymentPaid {
			return apperr.Wrap(apperr.InvalidState, ErrNotRefundable,
				fmt.Sprintf("order %s is %s and cannot be refunded", cur.Number, cur.PaymentStatus))
		}

		amount := cur.TotalAmount
		if req.Amount.Valid {
			amount = req.Amount.Decimal
		}
		if amount.GreaterThan(cur.TotalAmount) {
			return ErrRefundExceedsTotal
		}

		if err := s.adjustStock(ctx, cur, s.catalog.RestoreStock); err != nil {
			return err
		}

		cur.Status = StatusRefunded
		if amount.LessThan(cur.TotalAmount) {
			cur.PaymentStatus = PaymentPartiallyPaid
		} else {
			cur.PaymentStatus = PaymentRefunded
			cur.Payment.Status = ChargeRefunded
		}
		cur.RefundedAmount = amount

		reason := req.Reason
		if reason == "" {
			reason = "no reason given"
		}
		cur.appendNote(fmt.Sprintf("Refund of %s: %s", format.String(amount), reason))
		cur.UpdatedAt = s.now()

		if err := s.orders.Update(ctx, cur); err != nil {
			return errors.Wrap(err, "update order")
		}
		o = cur
		return nil
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderRefunded, o)
	return s.reload(ctx, o), nil
}

// adjustStock applies fn to every line whose product currently tracks
// inventory. Products deleted since the sale are skipped.
func (s *Service) adjustStock(
	ctx context.Context,
	o *Order,
	fn func(ctx context.Context, id string, qty int) error,
) error {
	for _, l := range o.Lines {
		p, err := s.catalog.FindProduct(ctx, l.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			zctx.From(ctx).Warn("Skipping stock adjustment for missing product",
				zap.String("order_number", o.Number),
				zap.String("product_id", l.ProductID),
			)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "find product %s", l.ProductID)
		}
		if !p.TrackInventory {
			continue
		}
		if err := fn(ctx, l.ProductID, l.Quantity); err != nil {
			return errors.Wrapf(err, "adjust stock of %s", l.ProductID)
		}
	}
	return nil
}
