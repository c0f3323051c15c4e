// Package events publishes order lifecycle notifications to a message
// broker after the corresponding unit of work has committed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Type names an order event. It doubles as the AMQP routing key.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderStatusChanged Type = "order.status_changed"
	OrderRefunded      Type = "order.refunded"
)

// Event is the broker payload for an order change.
type Event struct {
	Type          Type            `json:"type"`
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus"`
	Amount        decimal.Decimal `json:"amount"`
	CashierID     string          `json:"cashierId,omitempty"`
	At            time.Time       `json:"at"`
}

func (e Event) marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
