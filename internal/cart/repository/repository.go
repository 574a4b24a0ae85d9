package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/cart/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository is the durable cart partition: one {items} blob per shopper session.
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, sessionID string, cart domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}
