package service

import (
	"context"
	"errors"
	"time"

	cart "github.com/fjod/go_cart/internal/cart/domain"
	"github.com/fjod/go_cart/internal/checkout/domain"
	"github.com/fjod/go_cart/pkg/circuitbreaker"
	"go.uber.org/zap"
)

// CartStore is the slice of the cart service that checkout reads from and clears.
type CartStore interface {
	Cart(ctx context.Context, sessionID string) (cart.Cart, error)
	ClearCart(ctx context.Context, sessionID string) (cart.Snapshot, error)
}

// OrderSubmitter hands a finished order to whatever fulfils it and returns the order id.
// Submitting the same idempotency key twice must yield the first order's id.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order domain.Order) (string, error)
}

type CartHandler struct {
	store   CartStore
	timeout time.Duration
}

func NewCartHandler(store CartStore, timeout time.Duration) *CartHandler {
	return &CartHandler{
		store:   store,
		timeout: timeout,
	}
}

func (h *CartHandler) cart(ctx context.Context, sessionID string) (cart.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.store.Cart(ctx, sessionID)
}

func (h *CartHandler) clear(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()
	_, err := h.store.ClearCart(ctx, sessionID)
	return err
}

type SubmitHandler struct {
	submitter OrderSubmitter
	breaker   *circuitbreaker.Breaker[string]
	timeout   time.Duration
}

func NewSubmitHandler(submitter OrderSubmitter, timeout time.Duration, log *zap.Logger) *SubmitHandler {
	return &SubmitHandler{
		submitter: submitter,
		breaker: circuitbreaker.New[string](circuitbreaker.Settings{
			Name: "order-submission",
			Ignore: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
		}, log),
		timeout: timeout,
	}
}

func (h *SubmitHandler) submit(ctx context.Context, order domain.Order) (string, error) {
	return h.breaker.Execute(func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return h.submitter.SubmitOrder(ctx, order)
	})
}
