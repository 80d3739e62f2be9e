package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

const publishTimeout = 5 * time.Second

// StartWorkers drains queue with n goroutines until it is closed. The
// returned WaitGroup completes once every worker has exited.
func StartWorkers(n int, queue <-chan domain.OrderEvent, publisher port.EventPublisher, logger *log.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, publisher, logger)
		}(i)
	}
	logger.Printf("started %d event workers", n)
	return &wg
}

func workerLoop(id int, queue <-chan domain.OrderEvent, publisher port.EventPublisher, logger *log.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			logger.Printf("worker %d: failed to publish %s for order %s: %v", id, event.Type, event.OrderID, err)
		} else {
			logger.Printf("worker %d: published %s for order %s", id, event.Type, event.OrderID)
		}

		cancel()
	}
}
