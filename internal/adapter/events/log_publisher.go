package events

import (
	"context"
	"log"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

// LogPublisher is used when no brokers are configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	p.logger.Printf("event %s: order %s (%s) shopper=%s status=%s amount=%s",
		event.Type, event.OrderNumber, event.OrderID, event.ShopperID, event.Status, event.FinalAmount.StringFixed(2))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
