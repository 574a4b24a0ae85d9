package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/internal/cart/cache"
	"github.com/fjod/go_cart/internal/cart/domain"
	"github.com/fjod/go_cart/internal/cart/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	m        sync.RWMutex
	carts    map[string]domain.Cart
	err      error
	getCalls int
	saves    int
	deletes  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: map[string]domain.Cart{}}
}

func (m *mockRepository) GetCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[sessionID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	restored := domain.FromPersisted(c.Persisted())
	return &restored, nil
}

func (m *mockRepository) SaveCart(_ context.Context, sessionID string, cart domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.carts[sessionID] = cart
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deletes++
	delete(m.carts, sessionID)
	return nil
}

func (m *mockRepository) stored(sessionID string) (domain.Cart, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	c, ok := m.carts[sessionID]
	return c, ok
}

func (m *mockRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

type mockCache struct {
	m    sync.RWMutex
	cart *domain.Cart
	err  error
}

func (m *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	c := *m.cart
	return &c, nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = &cart
	return m.err
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	return m.err
}

func (m *mockCache) getCart() *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	})
}

func product(id, price string, qty int) domain.NewItem {
	return domain.NewItem{
		ProductID: id,
		Name:      "Product " + id,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestGetCart_RestoresFromRepositoryAndFillsCache(t *testing.T) {
	repo := newMockRepository()
	repo.carts["s1"] = domain.Cart{}.AddItem(product("p1", "10", 2), "item-a")
	mockC := &mockCache{}

	sut := NewCartService(repo, mockC, nil)
	snap, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "item-a", snap.Items[0].ID)
	assert.Equal(t, "20", snap.TotalPrice.String())
	assert.False(t, snap.IsOpen, "visibility is not restored")

	require.Eventually(t, func() bool {
		return mockC.getCart() != nil
	}, 100*time.Millisecond, 10*time.Millisecond, "cart was not set in cache")
}

func TestGetCart_CacheHit(t *testing.T) {
	repo := newMockRepository()
	cached := domain.Cart{}.AddItem(product("p1", "10", 3), "item-a")
	mockC := &mockCache{cart: &cached}

	sut := NewCartService(repo, mockC, nil)
	snap, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalItems)
	assert.Equal(t, 0, repo.getCalls, "repository should not be called on cache hit")
}

func TestGetCart_NotFoundReturnsEmptyCart(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil)
	snap, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.Equal(t, "15", snap.ShippingCost.String())
}

func TestGetCart_RepoError(t *testing.T) {
	repo := newMockRepository()
	repo.err = fmt.Errorf("database error")

	sut := NewCartService(repo, &mockCache{}, nil)
	_, err := sut.GetCart(context.Background(), "s1")
	require.ErrorContains(t, err, "database error")
}

func TestGetCart_RestoresOncePerSession(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil)

	for i := 0; i < 3; i++ {
		_, err := sut.GetCart(context.Background(), "s1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.getCalls)
}

func TestAddItem_WritesThroughAndInvalidatesCache(t *testing.T) {
	repo := newMockRepository()
	stale := domain.Cart{}
	mockC := &mockCache{}

	sut := NewCartService(repo, mockC, nil, sequentialIDs())
	_, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	mockC.Set(context.Background(), "s1", stale)

	snap, err := sut.AddItem(context.Background(), "s1", product("p1", "25.99", 2))
	require.NoError(t, err)
	assert.True(t, snap.IsOpen)
	assert.Equal(t, "51.98", snap.TotalPrice.String())
	assert.Equal(t, "66.98", snap.FinalTotal.String())

	stored, ok := repo.stored("s1")
	require.True(t, ok)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "item-1", stored.Items[0].ID)
	assert.Nil(t, mockC.getCart(), "cache was not invalidated")
}

func TestAddItem_MergesSameConfiguration(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "25.99", 2))
	require.NoError(t, err)
	snap, err := sut.AddItem(ctx, "s1", product("p1", "25.99", 1))
	require.NoError(t, err)

	require.Len(t, snap.Items, 1)
	assert.Equal(t, 3, snap.Items[0].Quantity)
	assert.Equal(t, "77.97", snap.Items[0].ItemTotal.String())
}

func TestAddItem_RepoErrorLeavesStateUntouched(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)

	repo.setErr(fmt.Errorf("database error"))
	_, err = sut.AddItem(ctx, "s1", product("p2", "10", 1))
	require.ErrorContains(t, err, "database error")

	cart, err := sut.Cart(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestUpdateQuantity(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, "s1", product("p2", "10", 1))
	require.NoError(t, err)

	snap, err := sut.UpdateQuantity(ctx, "s1", "item-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Items[0].Quantity)
	assert.Equal(t, "200", snap.Items[0].ItemTotal.String())
	assert.Equal(t, "0", snap.ShippingCost.String())

	snap, err = sut.UpdateQuantity(ctx, "s1", "item-1", 0)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "item-2", snap.Items[0].ID)

	stored, _ := repo.stored("s1")
	assert.Len(t, stored.Items, 1)
}

func TestRemoveItem_LastItemDeletesPartition(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)

	snap, err := sut.RemoveItem(ctx, "s1", "item-1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	_, ok := repo.stored("s1")
	assert.False(t, ok)
	assert.Equal(t, 1, repo.deletes)
}

func TestUpdateCustomization(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 2))
	require.NoError(t, err)

	text := "Hi"
	snap, err := sut.UpdateCustomization(ctx, "s1", "item-1", domain.Customization{
		SelectedMaterial: &domain.Material{Name: "Oak", Price: decimal.RequireFromString("2.5")},
		CustomText:       &text,
	})
	require.NoError(t, err)
	assert.Equal(t, "25", snap.Items[0].ItemTotal.String())
	assert.Equal(t, "Hi", snap.Items[0].CustomText)
}

func TestClearCart(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)

	snap, err := sut.ClearCart(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.False(t, snap.IsOpen)
	_, ok := repo.stored("s1")
	assert.False(t, ok)
}

func TestClearCart_RepoError(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)

	repo.setErr(fmt.Errorf("database error"))
	_, err = sut.ClearCart(ctx, "s1")
	require.ErrorContains(t, err, "database error")

	cart, _ := sut.Cart(ctx, "s1")
	assert.Len(t, cart.Items, 1)
}

func TestVisibilityIsNotPersisted(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil)
	ctx := context.Background()

	snap, err := sut.OpenCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, snap.IsOpen)

	snap, err = sut.ToggleCart(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, snap.IsOpen)

	snap, err = sut.SetVisibility(ctx, "s1", true)
	require.NoError(t, err)
	assert.True(t, snap.IsOpen)

	snap, err = sut.CloseCart(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, snap.IsOpen)

	assert.Equal(t, 0, repo.saves)
	assert.Equal(t, 0, repo.deletes)
}

func TestForget_RestoresFromStorage(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 4))
	require.NoError(t, err)

	sut.Forget("s1")
	snap, err := sut.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalItems)
	assert.False(t, snap.IsOpen)
	assert.Equal(t, 2, repo.getCalls)
}

func TestEvictIdle_DropsIdleSessionsAndRestoresFromStorage(t *testing.T) {
	repo := newMockRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sut := NewCartService(repo, &mockCache{}, nil, sequentialIDs(),
		WithIdleTimeout(10*time.Minute),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "idle", product("p1", "10", 2))
	require.NoError(t, err)
	_, err = sut.GetCart(ctx, "active")
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	_, err = sut.GetCart(ctx, "active")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, sut.EvictIdle())
	assert.Equal(t, 0, sut.EvictIdle())

	sut.mu.Lock()
	_, idleKept := sut.sessions["idle"]
	_, activeKept := sut.sessions["active"]
	sut.mu.Unlock()
	assert.False(t, idleKept)
	assert.True(t, activeKept)

	snap, err := sut.GetCart(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalItems)
	assert.Equal(t, 3, repo.getCalls, "evicted session is restored from the repository")
}

func TestEvictIdle_KeepsSessionWithMutationInFlight(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sut := NewCartService(newMockRepository(), &mockCache{}, nil,
		WithIdleTimeout(time.Minute),
		WithClock(func() time.Time { return now }))

	_, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	now = now.Add(time.Hour)

	sut.mu.Lock()
	sess := sut.sessions["s1"]
	sut.mu.Unlock()
	sess.mu.Lock()
	assert.Equal(t, 0, sut.EvictIdle())
	sess.mu.Unlock()

	assert.Equal(t, 1, sut.EvictIdle())
}

func TestRunEviction_StopsOnCancel(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil, WithIdleTimeout(0))
	_, err := sut.GetCart(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sut.RunEviction(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sut.mu.Lock()
		defer sut.mu.Unlock()
		return len(sut.sessions) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEviction did not stop after cancel")
	}
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil, sequentialIDs())
	ctx := context.Background()

	updates, cancel := sut.Subscribe("s1")
	defer cancel()

	_, err := sut.AddItem(ctx, "s1", product("p1", "60", 2))
	require.NoError(t, err)

	select {
	case snap := <-updates:
		assert.Equal(t, 2, snap.TotalItems)
		assert.Equal(t, "120", snap.FinalTotal.String())
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "s1", product("p1", "10", 1))
	require.NoError(t, err)

	snap, err := sut.GetCart(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestConcurrentAddsToOneSession(t *testing.T) {
	sut := NewCartService(newMockRepository(), &mockCache{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.AddItem(ctx, "s1", product("p1", "1", 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := sut.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 20, snap.Items[0].Quantity)
}
