package service

import (
	"context"
	"errors"
	"sync"

	cart "github.com/fjod/go_cart/internal/cart/domain"
	"github.com/fjod/go_cart/internal/checkout/domain"
	r "github.com/fjod/go_cart/internal/checkout/repository"
)

// MockSessionRepository implements r.SessionRepository for testing
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Persisted
	Err      error
	Loads    int
	Saves    int
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: map[string]domain.Persisted{}}
}

func (m *MockSessionRepository) LoadSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loads++
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.sessions[sessionID]
	if !ok {
		return nil, r.ErrSessionNotFound
	}
	s := domain.FromPersisted(p)
	return &s, nil
}

func (m *MockSessionRepository) SaveSession(_ context.Context, sessionID string, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Saves++
	m.sessions[sessionID] = s.Persisted()
	return nil
}

func (m *MockSessionRepository) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MockSessionRepository) Stored(sessionID string) (domain.Persisted, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[sessionID]
	return p, ok
}

func (m *MockSessionRepository) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// MockCartStore implements CartStore for testing
type MockCartStore struct {
	mu       sync.Mutex
	Carts    map[string]cart.Cart
	Err      error
	Cleared  []string
	ClearErr error
}

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{Carts: map[string]cart.Cart{}}
}

func (m *MockCartStore) Cart(_ context.Context, sessionID string) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return cart.Cart{}, m.Err
	}
	return m.Carts[sessionID], nil
}

func (m *MockCartStore) ClearCart(_ context.Context, sessionID string) (cart.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return cart.Snapshot{}, m.ClearErr
	}
	m.Cleared = append(m.Cleared, sessionID)
	c := m.Carts[sessionID].Clear()
	m.Carts[sessionID] = c
	return c.Snapshot(), nil
}

// MockSubmitter implements OrderSubmitter. It remembers orders by idempotency key
// the way the order store does.
type MockSubmitter struct {
	mu      sync.Mutex
	Err     error
	Orders  []domain.Order
	byKey   map[string]string
	Block   chan struct{}
	Started chan struct{}
}

func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{byKey: map[string]string{}}
}

func (m *MockSubmitter) SubmitOrder(ctx context.Context, order domain.Order) (string, error) {
	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, order)
	if m.Err != nil {
		return "", m.Err
	}
	if id, ok := m.byKey[order.IdempotencyKey]; ok {
		return id, nil
	}
	m.byKey[order.IdempotencyKey] = order.ID
	return order.ID, nil
}

func (m *MockSubmitter) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

var errSubmit = errors.New("order service unavailable")

// MockOrderRepository implements r.OrderRepository for testing
type MockOrderRepository struct {
	ExistingID string
	Err        error
	Created    []domain.Order
}

func (m *MockOrderRepository) CreateOrder(_ context.Context, order domain.Order) (string, error) {
	if m.Err != nil {
		return m.ExistingID, m.Err
	}
	m.Created = append(m.Created, order)
	return order.ID, nil
}

func (m *MockOrderRepository) GetOrderByIdempotencyKey(context.Context, string) (string, error) {
	if m.ExistingID == "" {
		return "", r.ErrOrderNotFound
	}
	return m.ExistingID, nil
}
