package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/ebook-shop/internal/core/domain"
)

var (
	// ErrDuplicateKey reports a uniqueness violation, e.g. a second PENDING
	// order for the same slot or a second cart for the same shopper.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrOptimisticLock reports a conditional write that matched no row.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
)

// UnitOfWork runs fn inside one atomic transaction. Returning an error from
// fn rolls back every write made through repos.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type Repositories interface {
	Carts() CartRepository
	Orders() OrderRepository
}

type CartRepository interface {
	// FindByShopper loads the cart with its lines, or nil if the shopper has
	// none. The cart stays locked until the unit of work ends.
	FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error)

	Create(ctx context.Context, cart *domain.Cart) error

	// SaveLine inserts or overwrites the line for (cart, ebook)
	SaveLine(ctx context.Context, line domain.CartLine) error

	DeleteLine(ctx context.Context, cartID string, ebookID int64) error
	DeleteLines(ctx context.Context, cartID string) error
	Touch(ctx context.Context, cartID string, at time.Time) error
}

type OrderRepository interface {
	// Create persists the order and its lines; ErrDuplicateKey if its pending slot is taken
	Create(ctx context.Context, order *domain.Order) error

	// FindByID loads the order with its lines, or nil if absent
	FindByID(ctx context.Context, orderID string) (*domain.Order, error)

	// FindLatestPending returns the shopper's newest PENDING order, or nil
	FindLatestPending(ctx context.Context, shopperID string) (*domain.Order, error)

	// FindPendingByKey returns the PENDING order occupying key, or nil. It must
	// see orders committed after the unit of work started.
	FindPendingByKey(ctx context.Context, key string) (*domain.Order, error)

	// FindPendingContaining returns the shopper's newest PENDING order with a
	// line for the ebook, whichever way it was created, or nil
	FindPendingContaining(ctx context.Context, shopperID string, ebookID int64) (*domain.Order, error)

	// HasPaid reports whether the shopper holds a PAID order containing the ebook
	HasPaid(ctx context.Context, shopperID string, ebookID int64) (bool, error)

	// ListByShopper returns summaries, newest first
	ListByShopper(ctx context.Context, shopperID string) ([]domain.OrderSummary, error)

	// UpdateStatus writes the order's status fields if it is still in status from
	UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
}
