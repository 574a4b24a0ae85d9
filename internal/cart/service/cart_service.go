package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/cart/cache"
	"github.com/fjod/go_cart/internal/cart/domain"
	"github.com/fjod/go_cart/internal/cart/repository"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/fjod/go_cart/pkg/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartService owns the in-memory cart of every active shopper session and mirrors
// item changes to the cart partition on each mutation.
type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *zap.Logger
	hub   *notify.Hub[domain.Snapshot]
	newID func() string
	now   func() time.Time
	sfg   singleflight.Group // Prevents restore stampede

	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu   sync.Mutex
	cart domain.Cart

	lastAccess time.Time // guarded by CartService.mu
}

// DefaultIdleTimeout is how long an untouched session stays in memory.
const DefaultIdleTimeout = 30 * time.Minute

type Option func(*CartService)

// WithIDGenerator replaces the uuid based line item id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *CartService) { s.newID = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

// WithIdleTimeout sets how long a session may go untouched before EvictIdle drops it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *CartService) { s.idleTimeout = d }
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *zap.Logger, opts ...Option) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &CartService{
		repo:     repo,
		cache:    cache,
		log:      log,
		hub:      notify.NewHub[domain.Snapshot](),
		newID:       uuid.NewString,
		now:         time.Now,
		idleTimeout: DefaultIdleTimeout,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// restore loads the persisted cart for a session: cache first, then repository.
// A session without a stored cart starts empty.
func (s *CartService) restore(ctx context.Context, sessionID string) (domain.Cart, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		log := logger.FromContext(ctx, s.log)

		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return *cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err)) // continue to repository
		}

		cart, errGet := s.repo.GetCart(ctx, sessionID)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			return domain.Cart{Items: []domain.LineItem{}}, nil
		}
		if errGet != nil {
			return nil, fmt.Errorf("restore cart %s: %w", sessionID, errGet)
		}

		restored := *cart
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(ctx, sessionID, restored); errSet != nil {
				log.Warn("cache set error", zap.String("session_id", sessionID), zap.Error(errSet))
			}
		}()

		return restored, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return v.(domain.Cart), nil
}

func (s *CartService) session(ctx context.Context, sessionID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.lastAccess = s.now()
	}
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	cart, err := s.restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.lastAccess = s.now()
		return sess, nil
	}
	sess = &session{cart: cart, lastAccess: s.now()}
	s.sessions[sessionID] = sess
	return sess, nil
}

// EvictIdle drops sessions untouched for longer than the idle timeout and returns
// how many were dropped. Sessions with a mutation in flight are kept. Carts are
// persisted on every item change, so an evicted session restores unchanged apart
// from visibility.
func (s *CartService) EvictIdle() int {
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastAccess.After(cutoff) {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		delete(s.sessions, id)
		sess.mu.Unlock()
		evicted++
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *CartService) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.log.Debug("idle cart sessions evicted", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// mutate applies reduce to the session cart. When persist is set the new items are
// written through before the in-memory state advances, so a failed write leaves the
// session exactly as it was.
func (s *CartService) mutate(ctx context.Context, sessionID string, persist bool, reduce func(domain.Cart) domain.Cart) (domain.Snapshot, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next := reduce(sess.cart)
	if persist {
		if err := s.write(ctx, sessionID, next); err != nil {
			return domain.Snapshot{}, err
		}
	}

	sess.cart = next
	snap := next.Snapshot()
	s.hub.Publish(sessionID, snap)
	return snap, nil
}

func (s *CartService) write(ctx context.Context, sessionID string, cart domain.Cart) error {
	var err error
	if cart.IsEmpty() {
		err = s.repo.DeleteCart(ctx, sessionID)
	} else {
		err = s.repo.SaveCart(ctx, sessionID, cart)
	}
	if err != nil {
		logger.FromContext(ctx, s.log).Error("repo write cart error", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("persist cart %s: %w", sessionID, err)
	}

	s.invalidateCache(ctx, sessionID)
	return nil
}

func (s *CartService) invalidateCache(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if errInvalidate := s.cache.Delete(ctx, sessionID); errInvalidate != nil {
		logger.FromContext(ctx, s.log).Warn("cache invalidate error", zap.String("session_id", sessionID), zap.Error(errInvalidate))
	}
}

// Cart returns the current cart of a session, restoring it on first access.
func (s *CartService) Cart(ctx context.Context, sessionID string) (domain.Cart, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart, nil
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return cart.Snapshot(), nil
}

func (s *CartService) AddItem(ctx context.Context, sessionID string, item domain.NewItem) (domain.Snapshot, error) {
	id := s.newID()
	snap, err := s.mutate(ctx, sessionID, true, func(c domain.Cart) domain.Cart {
		return c.AddItem(item, id)
	})
	if err == nil {
		logger.FromContext(ctx, s.log).Debug("item added",
			zap.String("session_id", sessionID),
			zap.String("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity))
	}
	return snap, err
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, itemID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, true, func(c domain.Cart) domain.Cart {
		return c.RemoveItem(itemID)
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, true, func(c domain.Cart) domain.Cart {
		return c.UpdateQuantity(itemID, quantity)
	})
}

func (s *CartService) UpdateCustomization(ctx context.Context, sessionID, itemID string, cz domain.Customization) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, true, func(c domain.Cart) domain.Cart {
		return c.UpdateCustomization(itemID, cz)
	})
}

func (s *CartService) ClearCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, true, domain.Cart.Clear)
}

// Visibility is ephemeral, so these mutators never touch storage.

func (s *CartService) ToggleCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, false, domain.Cart.Toggle)
}

func (s *CartService) OpenCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, false, domain.Cart.Open)
}

func (s *CartService) CloseCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, false, domain.Cart.Close)
}

func (s *CartService) SetVisibility(ctx context.Context, sessionID string, open bool) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, false, func(c domain.Cart) domain.Cart {
		return c.SetVisibility(open)
	})
}

// Subscribe streams a snapshot after every mutation of the session cart.
func (s *CartService) Subscribe(sessionID string) (<-chan domain.Snapshot, func()) {
	return s.hub.Subscribe(sessionID)
}

// Forget drops the in-memory session; the next access restores it from storage.
func (s *CartService) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
