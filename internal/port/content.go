package port

import (
	"context"
	"errors"
)

var ErrContentNotFound = errors.New("content not found")

type ContentStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
}
