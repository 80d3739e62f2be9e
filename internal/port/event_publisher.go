package port

import (
	"context"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
	Close() error
}
