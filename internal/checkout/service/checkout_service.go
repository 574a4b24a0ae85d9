package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/checkout/domain"
	r "github.com/fjod/go_cart/internal/checkout/repository"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/fjod/go_cart/pkg/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CheckoutService holds the wizard state of every active shopper session and
// places orders from it.
type CheckoutService struct {
	repo   r.SessionRepository
	cart   *CartHandler
	submit *SubmitHandler
	log    *zap.Logger
	hub    *notify.Hub[domain.Session]
	newID  func() string
	now    func() time.Time
	sfg    singleflight.Group

	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	state domain.Session

	lastAccess time.Time // guarded by CheckoutService.mu
}

// DefaultIdleTimeout is how long an untouched session stays in memory.
const DefaultIdleTimeout = 30 * time.Minute

type Option func(*CheckoutService)

// WithIDGenerator replaces the uuid based attempt and order id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *CheckoutService) { s.newID = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *CheckoutService) { s.now = now }
}

// WithIdleTimeout sets how long a session may go untouched before EvictIdle drops it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *CheckoutService) { s.idleTimeout = d }
}

func NewCheckoutService(repo r.SessionRepository, cart *CartHandler, submit *SubmitHandler, log *zap.Logger, opts ...Option) *CheckoutService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &CheckoutService{
		repo:     repo,
		cart:     cart,
		submit:   submit,
		log:      log,
		hub:      notify.NewHub[domain.Session](),
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
		idleTimeout: DefaultIdleTimeout,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CheckoutService) restore(ctx context.Context, sessionID string) (domain.Session, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		stored, err := s.repo.LoadSession(ctx, sessionID)
		if errors.Is(err, r.ErrSessionNotFound) {
			return domain.NewSession(s.newID()), nil
		}
		if err != nil {
			return nil, fmt.Errorf("restore checkout %s: %w", sessionID, err)
		}
		return *stored, nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return v.(domain.Session), nil
}

func (s *CheckoutService) session(ctx context.Context, sessionID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.lastAccess = s.now()
	}
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	state, err := s.restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.lastAccess = s.now()
		return sess, nil
	}
	sess = &session{state: state, lastAccess: s.now()}
	s.sessions[sessionID] = sess
	return sess, nil
}

// EvictIdle drops sessions untouched for longer than the idle timeout and returns
// how many were dropped. Sessions that are mid-update or submitting an order are
// kept. The current step is ephemeral, so a restored session starts at shipping.
func (s *CheckoutService) EvictIdle() int {
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
		if !sess.state.IsLoading {
			delete(s.sessions, id)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *CheckoutService) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.log.Debug("idle checkout sessions evicted", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// mutate applies reduce under the session lock; persisted changes are written
// before the in-memory state advances.
func (s *CheckoutService) mutate(ctx context.Context, sessionID string, persist bool, reduce func(domain.Session) domain.Session) (domain.Session, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.apply(ctx, sessionID, sess, persist, reduce)
}

// apply expects sess.mu to be held.
func (s *CheckoutService) apply(ctx context.Context, sessionID string, sess *session, persist bool, reduce func(domain.Session) domain.Session) (domain.Session, error) {
	next := reduce(sess.state)
	if persist {
		if err := s.repo.SaveSession(ctx, sessionID, next); err != nil {
			logger.FromContext(ctx, s.log).Error("repo write checkout error", zap.String("session_id", sessionID), zap.Error(err))
			return domain.Session{}, fmt.Errorf("persist checkout %s: %w", sessionID, err)
		}
	}
	sess.state = next
	s.hub.Publish(sessionID, next)
	return next, nil
}

func (s *CheckoutService) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, nil
}

// SetCurrentStep is ephemeral and never written to storage.
func (s *CheckoutService) SetCurrentStep(ctx context.Context, sessionID string, step domain.Step) (domain.Session, error) {
	return s.mutate(ctx, sessionID, false, func(st domain.Session) domain.Session {
		return st.SetCurrentStep(step)
	})
}

func (s *CheckoutService) UpdateShipping(ctx context.Context, sessionID string, a domain.Address) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdateShipping(a)
	})
}

func (s *CheckoutService) UpdateBilling(ctx context.Context, sessionID string, b domain.BillingAddress) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdateBilling(b)
	})
}

func (s *CheckoutService) UpdatePayment(ctx context.Context, sessionID string, p domain.PaymentMethod) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdatePayment(p)
	})
}

func (s *CheckoutService) UpdateShippingMethod(ctx context.Context, sessionID string, m domain.ShippingMethod) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdateShippingMethod(m)
	})
}

func (s *CheckoutService) UpdateNotes(ctx context.Context, sessionID, notes string) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdateNotes(notes)
	})
}

// PaymentDetails stores the whole payment step in one write.
type PaymentDetails struct {
	Payment        domain.PaymentMethod
	ShippingMethod domain.ShippingMethod
	Notes          string
}

func (s *CheckoutService) UpdatePaymentStep(ctx context.Context, sessionID string, d PaymentDetails) (domain.Session, error) {
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.UpdatePayment(d.Payment).UpdateShippingMethod(d.ShippingMethod).UpdateNotes(d.Notes)
	})
}

func (s *CheckoutService) SetLoading(ctx context.Context, sessionID string, loading bool) (domain.Session, error) {
	return s.mutate(ctx, sessionID, false, func(st domain.Session) domain.Session {
		return st.SetLoading(loading)
	})
}

// ResetCheckout discards all answers and starts a new attempt.
func (s *CheckoutService) ResetCheckout(ctx context.Context, sessionID string) (domain.Session, error) {
	attemptID := s.newID()
	return s.mutate(ctx, sessionID, true, func(st domain.Session) domain.Session {
		return st.Reset(attemptID)
	})
}

func (s *CheckoutService) IsStepValid(ctx context.Context, sessionID string, step domain.Step) (bool, error) {
	st, err := s.Session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return st.IsStepValid(step), nil
}

func (s *CheckoutService) CanProceedToStep(ctx context.Context, sessionID string, step domain.Step) (bool, error) {
	st, err := s.Session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return st.CanProceedToStep(step), nil
}

// Summary prices the session cart for the confirmation step.
func (s *CheckoutService) Summary(ctx context.Context, sessionID string) (domain.Summary, error) {
	c, err := s.cart.cart(ctx, sessionID)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load cart: %w", err)
	}
	return domain.NewSummary(c), nil
}

// PlaceOrder submits the session's order. A failed submission leaves the wizard
// untouched so it can be retried with the same idempotency key; a successful one
// clears the cart and starts a new attempt.
func (s *CheckoutService) PlaceOrder(ctx context.Context, sessionID string) (*domain.PlacedOrder, error) {
	log := logger.FromContext(ctx, s.log).With(zap.String("session_id", sessionID))

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.state.IsLoading {
		sess.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	if !sess.state.ReadyToPlace() {
		sess.mu.Unlock()
		return nil, ErrIncompleteCheckout
	}
	c, err := s.cart.cart(ctx, sessionID)
	if err != nil {
		sess.mu.Unlock()
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() {
		sess.mu.Unlock()
		return nil, ErrEmptyCart
	}
	attempt, _ := s.apply(ctx, sessionID, sess, false, func(st domain.Session) domain.Session {
		return st.SetLoading(true)
	})
	sess.mu.Unlock()

	order := domain.NewOrder(s.newID(), sessionID, attempt, c, s.now())
	orderID, err := s.submit.submit(ctx, order)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err != nil {
		log.Warn("order submission failed", zap.String("idempotency_key", attempt.AttemptID), zap.Error(err))
		_, _ = s.apply(ctx, sessionID, sess, false, func(st domain.Session) domain.Session {
			return st.SetLoading(false)
		})
		return nil, fmt.Errorf("submit order: %w", err)
	}

	log.Info("order placed", zap.String("order_id", orderID), zap.String("idempotency_key", attempt.AttemptID))

	if errClear := s.cart.clear(ctx, sessionID); errClear != nil {
		log.Error("clear cart after order failed", zap.String("order_id", orderID), zap.Error(errClear))
	}

	// A failed reset keeps the old attempt id, so a retry resolves to the same order.
	nextAttempt := s.newID()
	if _, errReset := s.apply(context.WithoutCancel(ctx), sessionID, sess, true, func(st domain.Session) domain.Session {
		return st.Reset(nextAttempt)
	}); errReset != nil {
		_, _ = s.apply(ctx, sessionID, sess, false, func(st domain.Session) domain.Session {
			return st.SetLoading(false)
		})
	}

	return &domain.PlacedOrder{
		OrderID:        orderID,
		IdempotencyKey: attempt.AttemptID,
		Summary:        order.Summary,
	}, nil
}

func (s *CheckoutService) Subscribe(sessionID string) (<-chan domain.Session, func()) {
	return s.hub.Subscribe(sessionID)
}

// Forget drops the in-memory session; the next access restores it from storage.
func (s *CheckoutService) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
