package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/cart/domain"
)

// CartCache is a read-through copy of the cart partition; it never holds visibility state.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Set(ctx context.Context, sessionID string, cart domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")
