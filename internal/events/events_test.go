package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAt = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func testEvent(typ Type) Event {
	return Event{
		Type:          typ,
		OrderID:       "0b6f2c1e-8f1e-4c4a-9d59-5a2a3c1f0e11",
		OrderNumber:   "ORD-20240115-0001",
		Status:        "completed",
		PaymentStatus: "paid",
		Amount:        decimal.RequireFromString("394.40"),
		CashierID:     "cashier-1",
		At:            testAt,
	}
}

func TestEvent_Marshal(t *testing.T) {
	b, err := testEvent(OrderCreated).marshal()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, map[string]any{
		"type":          "order.created",
		"orderId":       "0b6f2c1e-8f1e-4c4a-9d59-5a2a3c1f0e11",
		"orderNumber":   "ORD-20240115-0001",
		"status":        "completed",
		"paymentStatus": "paid",
		"amount":        "394.4",
		"cashierId":     "cashier-1",
		"at":            "2024-01-15T10:00:00Z",
	}, got)
}

func TestEvent_MarshalOmitsEmptyCashier(t *testing.T) {
	e := testEvent(OrderRefunded)
	e.CashierID = ""

	b, err := e.marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "cashierId")
}

func TestKafkaMessage(t *testing.T) {
	e := testEvent(OrderStatusChanged)

	msg, err := kafkaMessage(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("ORD-20240115-0001"), msg.Key, "events of one order share a partition key")
	assert.Equal(t, testAt, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "event-type", Value: []byte("order.status_changed")},
	}, msg.Headers)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, e.OrderID, got.OrderID)
	assert.Equal(t, e.Type, got.Type)
	assert.True(t, e.Amount.Equal(got.Amount))
}

func TestKafkaWriter_FailsFast(t *testing.T) {
	w := newKafkaWriter([]string{"127.0.0.1:1"}, "orders")
	assert.Equal(t, "orders", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, 1, w.BatchSize)
	assert.Equal(t, 2, w.MaxAttempts)
	assert.False(t, w.Async)

	p := &KafkaPublisher{w: w}
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, testEvent(OrderCreated))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAMQPPublishing(t *testing.T) {
	for _, typ := range []Type{OrderCreated, OrderStatusChanged, OrderRefunded} {
		t.Run(string(typ), func(t *testing.T) {
			e := testEvent(typ)

			assert.Equal(t, string(typ), routingKey(e))

			msg, err := amqpPublishing(e)
			require.NoError(t, err)
			assert.Equal(t, "application/json", msg.ContentType)
			assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
			assert.Equal(t, e.OrderID+":"+string(typ), msg.MessageId)
			assert.Equal(t, testAt, msg.Timestamp)

			var got Event
			require.NoError(t, json.Unmarshal(msg.Body, &got))
			assert.Equal(t, typ, got.Type)
			assert.Equal(t, e.OrderNumber, got.OrderNumber)
		})
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), testEvent(OrderCreated)))
	assert.NoError(t, p.Close())
}
