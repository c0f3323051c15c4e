package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes events to a single topic keyed by order number, so
// all events of one order land on the same partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: newKafkaWriter(brokers, topic)}
}

// newKafkaWriter flushes every message right away and caps retries, so a
// write fails fast instead of waiting out a full batch or backoff cycle.
func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  2,
		WriteTimeout: time.Second,
		ReadTimeout:  time.Second,
	}
}

func kafkaMessage(e Event) (kafka.Message, error) {
	b, err := e.marshal()
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal event")
	}
	return kafka.Message{
		Key:   []byte(e.OrderNumber),
		Value: b,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}

// Publish encodes e as JSON and writes it synchronously. The caller bounds
// the wait through ctx.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := kafkaMessage(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
