package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/checkout/publisher"
	r "github.com/fjod/go_cart/internal/checkout/repository"
)

// orderPlacedEvent is the subset of the outbox order payload the consumer reads.
type orderPlacedEvent struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
}

// Evictor drops in-memory session state so the next access reloads from storage.
type Evictor interface {
	Forget(sessionID string)
}

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer listens for placed orders and evicts the ordering session from
// every registered evictor, so instances that did not serve the order stop
// holding its pre-order cart and wizard state.
type Consumer struct {
	reader   MessageReader
	evictors []Evictor
	backoff  time.Duration
	log      *zap.Logger
}

// NewKafkaReader subscribes to placed orders. Each instance must use its own
// group id so every instance sees every order.
func NewKafkaReader(groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.TopicOrdersPlaced,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(reader MessageReader, log *zap.Logger, evictors ...Evictor) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		reader:   reader,
		evictors: evictors,
		backoff:  time.Second,
		log:      log.Named("order_consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// processMessage returns an error only when reading failed; malformed messages
// are logged and skipped.
func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		c.log.Warn("error reading message", zap.Error(err))
		return err
	}

	if eventType(m) != r.EventOrderPlaced {
		return nil
	}

	var event orderPlacedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn("error parsing message", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if event.SessionID == "" {
		c.log.Warn("order event without session", zap.String("order_id", event.OrderID))
		return nil
	}

	for _, e := range c.evictors {
		e.Forget(event.SessionID)
	}
	c.log.Debug("session evicted after order",
		zap.String("order_id", event.OrderID),
		zap.String("session_id", event.SessionID))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
