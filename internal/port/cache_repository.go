package port

import (
	"context"
	"time"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

type TokenStore interface {
	// Save persists a newly issued token
	Save(ctx context.Context, token domain.DownloadToken) error

	// Find returns the token with the given value, or nil if absent
	Find(ctx context.Context, value string) (*domain.DownloadToken, error)

	// Consume atomically deletes the token, returns false if it was already gone
	Consume(ctx context.Context, value string) (bool, error)
}

// TokenSweeper is implemented by token stores whose records do not expire on their own.
type TokenSweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
