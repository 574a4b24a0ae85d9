package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/internal/checkout/domain"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicateOrder  = errors.New("order for this attempt already exists")
)

// EventOrderPlaced is the outbox event type written alongside every new order.
const EventOrderPlaced = "OrderPlaced"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// SessionRepository is the durable checkout partition: answers and attempt id per shopper session.
type SessionRepository interface {
	LoadSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SaveSession(ctx context.Context, sessionID string, session domain.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type OrderRepository interface {
	// CreateOrder stores the order and its outbox event atomically. When an order
	// with the same idempotency key exists, its id is returned with ErrDuplicateOrder.
	CreateOrder(ctx context.Context, order domain.Order) (string, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (string, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type RepoInterface interface {
	SessionRepository
	OrderRepository
	OutboxRepository
	RunMigrations(*Credentials) error
	Close() error
}
