package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/checkout/domain"
	"github.com/fjod/go_cart/internal/checkout/publisher"
	r "github.com/fjod/go_cart/internal/checkout/repository"
)

type MockReader struct {
	mu       sync.Mutex
	Messages []kafkaGo.Message
	Errs     []error
	Closed   bool
}

// ReadMessage returns queued errors first, then queued messages, then blocks until ctx ends.
func (m *MockReader) ReadMessage(ctx context.Context) (kafkaGo.Message, error) {
	m.mu.Lock()
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		m.mu.Unlock()
		return kafkaGo.Message{}, err
	}
	if len(m.Messages) > 0 {
		msg := m.Messages[0]
		m.Messages = m.Messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafkaGo.Message{}, ctx.Err()
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

type MockEvictor struct {
	mu        sync.Mutex
	Forgotten []string
}

func (e *MockEvictor) Forget(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Forgotten = append(e.Forgotten, sessionID)
}

func (e *MockEvictor) sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Forgotten...)
}

func orderMessage(t *testing.T, orderID, sessionID string) kafkaGo.Message {
	payload, err := json.Marshal(domain.Order{ID: orderID, SessionID: sessionID, IdempotencyKey: "attempt-" + orderID})
	require.NoError(t, err)
	return kafkaGo.Message{
		Key:     []byte(orderID),
		Value:   payload,
		Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte(r.EventOrderPlaced)}},
	}
}

func TestProcessMessage_EvictsSessionFromAllEvictors(t *testing.T) {
	reader := &MockReader{Messages: []kafkaGo.Message{orderMessage(t, "o1", "s1")}}
	carts, checkouts := &MockEvictor{}, &MockEvictor{}
	c := NewConsumer(reader, zap.NewNop(), carts, checkouts)

	require.NoError(t, c.processMessage(context.Background()))

	assert.Equal(t, []string{"s1"}, carts.sessions())
	assert.Equal(t, []string{"s1"}, checkouts.sessions())
}

func TestProcessMessage_SkipsOtherEventTypes(t *testing.T) {
	msg := orderMessage(t, "o1", "s1")
	msg.Headers = []kafkaGo.Header{{Key: "event_type", Value: []byte("OrderShipped")}}
	reader := &MockReader{Messages: []kafkaGo.Message{msg}}
	ev := &MockEvictor{}

	require.NoError(t, NewConsumer(reader, nil, ev).processMessage(context.Background()))
	assert.Empty(t, ev.sessions())
}

func TestProcessMessage_SkipsMalformedPayloads(t *testing.T) {
	garbage := orderMessage(t, "o1", "s1")
	garbage.Value = []byte("{not json")
	noSession := orderMessage(t, "o2", "")
	reader := &MockReader{Messages: []kafkaGo.Message{garbage, noSession}}
	ev := &MockEvictor{}
	c := NewConsumer(reader, nil, ev)

	require.NoError(t, c.processMessage(context.Background()))
	require.NoError(t, c.processMessage(context.Background()))
	assert.Empty(t, ev.sessions())
}

func TestProcessMessage_ReadError(t *testing.T) {
	reader := &MockReader{Errs: []error{errors.New("broker down"), context.Canceled}}
	c := NewConsumer(reader, nil)

	assert.Error(t, c.processMessage(context.Background()))
	assert.NoError(t, c.processMessage(context.Background()), "cancellation is not a read failure")
}

func TestRun_RecoversAfterReadErrorAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &MockReader{
		Errs:     []error{errors.New("broker down")},
		Messages: []kafkaGo.Message{orderMessage(t, "o1", "s1")},
	}
	ev := &MockEvictor{}
	c := NewConsumer(reader, nil, ev)
	c.backoff = time.Millisecond

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(ev.sessions()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	require.NoError(t, c.Close())
	assert.True(t, reader.Closed)
}

func TestConsumer_KafkaRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	defer func() {
		if err := kafkaContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}()
	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)

	w := publisher.NewKafkaWriter(brokers...)
	defer w.Close()
	msg := orderMessage(t, "o-kafka", "s-kafka")
	require.Eventually(t, func() bool {
		return w.WriteMessages(ctx, msg) == nil
	}, 30*time.Second, time.Second)

	reader := NewKafkaReader("storefront-test", brokers...)
	ev := &MockEvictor{}
	c := NewConsumer(reader, zap.NewNop(), ev)
	defer c.Close()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		s := ev.sessions()
		return len(s) > 0 && s[0] == "s-kafka"
	}, 30*time.Second, 500*time.Millisecond)
}
