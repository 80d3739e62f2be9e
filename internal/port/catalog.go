package port

import (
	"context"
	"errors"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

var ErrEbookNotFound = errors.New("ebook not found")

type CatalogLookup interface {
	// Lookup resolves an ebook regardless of status, ErrEbookNotFound if absent
	Lookup(ctx context.Context, ebookID int64) (domain.Ebook, error)
}
