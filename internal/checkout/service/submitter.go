package service

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/checkout/domain"
	r "github.com/fjod/go_cart/internal/checkout/repository"
	"go.uber.org/zap"
)

// RepositorySubmitter records orders in the checkout database; the outbox poller
// publishes them from there.
type RepositorySubmitter struct {
	repo r.OrderRepository
	log  *zap.Logger
}

func NewRepositorySubmitter(repo r.OrderRepository, log *zap.Logger) *RepositorySubmitter {
	return &RepositorySubmitter{repo: repo, log: log}
}

func (s *RepositorySubmitter) SubmitOrder(ctx context.Context, order domain.Order) (string, error) {
	id, err := s.repo.CreateOrder(ctx, order)
	if errors.Is(err, r.ErrDuplicateOrder) {
		s.log.Info("duplicate order submission",
			zap.String("idempotency_key", order.IdempotencyKey),
			zap.String("order_id", id))
		return id, nil
	}
	return id, err
}
