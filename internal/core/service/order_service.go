package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

type OrderService struct {
	uow        port.UnitOfWork
	catalog    port.CatalogLookup
	cfg        Config
	logger     *log.Logger
	eventQueue chan domain.OrderEvent
}

func NewOrderService(uow port.UnitOfWork, catalog port.CatalogLookup, cfg Config, logger *log.Logger, queueSize int) *OrderService {
	return &OrderService{
		uow:        uow,
		catalog:    catalog,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		eventQueue: make(chan domain.OrderEvent, queueSize),
	}
}

// CreateFromCart converts the shopper's cart into a PENDING order and empties
// the cart. An existing PENDING order is returned unchanged instead.
func (s *OrderService) CreateFromCart(ctx context.Context, shopperID string) (*domain.Order, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}

	var (
		order   *domain.Order
		created bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		// the cart read locks the cart row, so concurrent conversions for one
		// shopper check for a pending order one at a time
		cart, err := repos.Carts().FindByShopper(ctx, shopperID)
		if err != nil {
			return err
		}

		pending, err := repos.Orders().FindLatestPending(ctx, shopperID)
		if err != nil {
			return err
		}
		if pending != nil {
			order = pending
			return nil
		}

		if cart == nil || len(cart.Lines) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		lines := make([]domain.OrderLine, 0, len(cart.Lines))
		for _, cl := range cart.Lines {
			eb, err := s.sellable(ctx, cl.EbookID, ErrValidation)
			if err != nil {
				return err
			}
			line, err := domain.NewOrderLine(eb.ID, eb.Title, eb.Price, cl.Quantity)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			lines = append(lines, line)
		}

		now := s.cfg.Now()
		o, err := domain.NewOrder(uuid.NewString(), shopperID, s.newOrderNumber(), domain.OrderSourceCart, lines, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		existing, err := s.insertOrReuse(ctx, repos.Orders(), o)
		if err != nil {
			return err
		}
		if existing != nil {
			order = existing
			return nil
		}

		if err := clearCart(ctx, repos.Carts(), cart, now); err != nil {
			return err
		}
		order, created = o, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.enqueue(domain.NewOrderEvent(domain.OrderEventCreated, order, order.CreatedAt))
	}
	return order, nil
}

// CreateDirectOrder buys a single ebook without going through the cart.
func (s *OrderService) CreateDirectOrder(ctx context.Context, shopperID string, ebookID int64) (*domain.Order, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}

	var (
		order   *domain.Order
		created bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		paid, err := repos.Orders().HasPaid(ctx, shopperID, ebookID)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("%w: ebook %d already purchased", ErrConflict, ebookID)
		}

		// a cart order holding the ebook counts as well
		pending, err := repos.Orders().FindPendingContaining(ctx, shopperID, ebookID)
		if err != nil {
			return err
		}
		if pending != nil {
			order = pending
			return nil
		}

		eb, err := s.sellable(ctx, ebookID, ErrNotFound)
		if err != nil {
			return err
		}
		line, err := domain.NewOrderLine(eb.ID, eb.Title, eb.Price, 1)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		o, err := domain.NewOrder(uuid.NewString(), shopperID, s.newOrderNumber(), domain.OrderSourceDirect, []domain.OrderLine{line}, s.cfg.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		existing, err := s.insertOrReuse(ctx, repos.Orders(), o)
		if err != nil {
			return err
		}
		if existing != nil {
			order = existing
			return nil
		}
		order, created = o, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.enqueue(domain.NewOrderEvent(domain.OrderEventCreated, order, order.CreatedAt))
	}
	return order, nil
}

// MarkPaid is the payment gateway's integration point. It also empties the
// shopper's cart, which direct orders leave untouched.
func (s *OrderService) MarkPaid(ctx context.Context, shopperID, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		o, err := s.ownedOrder(ctx, repos.Orders(), shopperID, orderID)
		if err != nil {
			return err
		}
		now := s.cfg.Now()
		if err := o.MarkPaid(now); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if err := s.updateStatus(ctx, repos.Orders(), o); err != nil {
			return err
		}

		cart, err := repos.Carts().FindByShopper(ctx, shopperID)
		if err != nil {
			return err
		}
		if cart != nil {
			if err := clearCart(ctx, repos.Carts(), cart, now); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(domain.NewOrderEvent(domain.OrderEventPaid, order, *order.PaidAt))
	return order, nil
}

func (s *OrderService) Cancel(ctx context.Context, shopperID, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		o, err := s.ownedOrder(ctx, repos.Orders(), shopperID, orderID)
		if err != nil {
			return err
		}
		if err := o.Cancel(s.cfg.Now()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if err := s.updateStatus(ctx, repos.Orders(), o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(domain.NewOrderEvent(domain.OrderEventCanceled, order, *order.CanceledAt))
	return order, nil
}

func (s *OrderService) GetDetail(ctx context.Context, shopperID, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		order, err = s.ownedOrder(ctx, repos.Orders(), shopperID, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetMyOrders(ctx context.Context, shopperID string) ([]domain.OrderSummary, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}
	var orders []domain.OrderSummary
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		orders, err = repos.Orders().ListByShopper(ctx, shopperID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.eventQueue
}

func (s *OrderService) Close() {
	close(s.eventQueue)
}

// ownedOrder reports another shopper's order exactly like a missing one.
func (s *OrderService) ownedOrder(ctx context.Context, orders port.OrderRepository, shopperID, orderID string) (*domain.Order, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	o, err := orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil || !o.OwnedBy(shopperID) {
		return nil, errOrderNotFound
	}
	return o, nil
}

func (s *OrderService) updateStatus(ctx context.Context, orders port.OrderRepository, o *domain.Order) error {
	err := orders.UpdateStatus(ctx, o, domain.OrderStatusPending)
	if errors.Is(err, port.ErrOptimisticLock) {
		return fmt.Errorf("%w: order %s is no longer PENDING", ErrInvalidState, o.ID)
	}
	return err
}

// insertOrReuse returns the order already holding o's pending slot when the
// store rejects o as a duplicate.
func (s *OrderService) insertOrReuse(ctx context.Context, orders port.OrderRepository, o *domain.Order) (*domain.Order, error) {
	err := orders.Create(ctx, o)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, port.ErrDuplicateKey) {
		return nil, err
	}
	existing, findErr := orders.FindPendingByKey(ctx, o.PendingKey())
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	s.logger.Printf("reusing pending order %s for shopper %s", existing.ID, o.ShopperID)
	return existing, nil
}

// sellable resolves an ebook that may be sold. missing is the error kind
// reported when the catalog has no such ebook.
func (s *OrderService) sellable(ctx context.Context, ebookID int64, missing error) (domain.Ebook, error) {
	eb, err := s.catalog.Lookup(ctx, ebookID)
	if errors.Is(err, port.ErrEbookNotFound) {
		return domain.Ebook{}, fmt.Errorf("%w: ebook %d", missing, ebookID)
	}
	if err != nil {
		return domain.Ebook{}, fmt.Errorf("catalog lookup %d: %w", ebookID, err)
	}
	if !eb.Status.Sellable() {
		return domain.Ebook{}, fmt.Errorf("%w: ebook %d is not available", ErrValidation, ebookID)
	}
	return eb, nil
}

func (s *OrderService) newOrderNumber() string {
	return s.cfg.OrderNumberPrefix + upperHex(16)
}

func (s *OrderService) enqueue(event domain.OrderEvent) {
	select {
	case s.eventQueue <- event:
	default:
		s.logger.Printf("event queue full, dropped %s for order %s", event.Type, event.OrderID)
	}
}

func upperHex(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return strings.ToUpper(hex[:n])
}
