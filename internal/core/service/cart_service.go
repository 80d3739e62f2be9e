package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

type CartService struct {
	uow     port.UnitOfWork
	catalog port.CatalogLookup
	cfg     Config
}

func NewCartService(uow port.UnitOfWork, catalog port.CatalogLookup, cfg Config) *CartService {
	return &CartService{uow: uow, catalog: catalog, cfg: cfg.withDefaults()}
}

func (s *CartService) GetOrCreate(ctx context.Context, shopperID string) (*domain.Cart, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}
	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		cart, err = loadOrCreateCart(ctx, repos.Carts(), shopperID, s.cfg.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, shopperID string, ebookID int64, quantity int) (domain.CartLine, error) {
	if err := requireShopper(shopperID); err != nil {
		return domain.CartLine{}, err
	}
	if quantity < 1 {
		return domain.CartLine{}, fmt.Errorf("%w: %v", ErrValidation, domain.ErrInvalidQuantity)
	}
	if _, err := s.lookup(ctx, ebookID); err != nil {
		return domain.CartLine{}, err
	}

	var line domain.CartLine
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		now := s.cfg.Now()
		cart, err := loadOrCreateCart(ctx, repos.Carts(), shopperID, now)
		if err != nil {
			return err
		}
		line, err = cart.Add(ebookID, quantity, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := repos.Carts().SaveLine(ctx, line); err != nil {
			return err
		}
		return repos.Carts().Touch(ctx, cart.ID, now)
	})
	return line, err
}

func (s *CartService) SetQuantity(ctx context.Context, shopperID string, ebookID int64, quantity int) (domain.CartLine, error) {
	if err := requireShopper(shopperID); err != nil {
		return domain.CartLine{}, err
	}
	if quantity < 1 {
		return domain.CartLine{}, fmt.Errorf("%w: %v", ErrValidation, domain.ErrInvalidQuantity)
	}

	var line domain.CartLine
	err := s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		now := s.cfg.Now()
		cart, err := loadOrCreateCart(ctx, repos.Carts(), shopperID, now)
		if err != nil {
			return err
		}
		line, err = cart.SetQuantity(ebookID, quantity, now)
		if errors.Is(err, domain.ErrLineNotFound) {
			return fmt.Errorf("%w: cart line for ebook %d", ErrNotFound, ebookID)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := repos.Carts().SaveLine(ctx, line); err != nil {
			return err
		}
		return repos.Carts().Touch(ctx, cart.ID, now)
	})
	return line, err
}

func (s *CartService) RemoveItem(ctx context.Context, shopperID string, ebookID int64) error {
	if err := requireShopper(shopperID); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		now := s.cfg.Now()
		cart, err := loadOrCreateCart(ctx, repos.Carts(), shopperID, now)
		if err != nil {
			return err
		}
		if err := cart.Remove(ebookID, now); err != nil {
			return fmt.Errorf("%w: cart line for ebook %d", ErrNotFound, ebookID)
		}
		if err := repos.Carts().DeleteLine(ctx, cart.ID, ebookID); err != nil {
			return err
		}
		return repos.Carts().Touch(ctx, cart.ID, now)
	})
}

func (s *CartService) Clear(ctx context.Context, shopperID string) error {
	if err := requireShopper(shopperID); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		now := s.cfg.Now()
		cart, err := loadOrCreateCart(ctx, repos.Carts(), shopperID, now)
		if err != nil {
			return err
		}
		return clearCart(ctx, repos.Carts(), cart, now)
	})
}

// ListLines values every line at the current catalog price. A line whose
// ebook has left the catalog is reported unsellable with a zero price.
func (s *CartService) ListLines(ctx context.Context, shopperID string) ([]domain.PricedLine, error) {
	cart, err := s.GetOrCreate(ctx, shopperID)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.PricedLine, 0, len(cart.Lines))
	for _, cl := range cart.Lines {
		pl := domain.PricedLine{
			EbookID:      cl.EbookID,
			Quantity:     cl.Quantity,
			UnitPrice:    decimal.Zero,
			LineSubtotal: decimal.Zero,
		}
		eb, err := s.catalog.Lookup(ctx, cl.EbookID)
		switch {
		case errors.Is(err, port.ErrEbookNotFound):
		case err != nil:
			return nil, fmt.Errorf("catalog lookup %d: %w", cl.EbookID, err)
		default:
			pl.Title = eb.Title
			pl.UnitPrice = domain.Money(eb.Price)
			pl.LineSubtotal = domain.Money(eb.Price.Mul(decimal.NewFromInt(int64(cl.Quantity))))
			pl.Sellable = eb.Status.Sellable()
		}
		lines = append(lines, pl)
	}
	return lines, nil
}

func (s *CartService) Summary(ctx context.Context, shopperID string) (domain.CartSummary, error) {
	lines, err := s.ListLines(ctx, shopperID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	return domain.Summarize(lines), nil
}

func (s *CartService) lookup(ctx context.Context, ebookID int64) (domain.Ebook, error) {
	eb, err := s.catalog.Lookup(ctx, ebookID)
	if errors.Is(err, port.ErrEbookNotFound) {
		return domain.Ebook{}, fmt.Errorf("%w: ebook %d", ErrNotFound, ebookID)
	}
	if err != nil {
		return domain.Ebook{}, fmt.Errorf("catalog lookup %d: %w", ebookID, err)
	}
	return eb, nil
}

func requireShopper(shopperID string) error {
	if strings.TrimSpace(shopperID) == "" {
		return fmt.Errorf("%w: shopper id is required", ErrValidation)
	}
	return nil
}

func loadOrCreateCart(ctx context.Context, carts port.CartRepository, shopperID string, now time.Time) (*domain.Cart, error) {
	cart, err := carts.FindByShopper(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	cart = domain.NewCart(shopperID, now)
	err = carts.Create(ctx, cart)
	if errors.Is(err, port.ErrDuplicateKey) {
		// created concurrently by another request
		return carts.FindByShopper(ctx, shopperID)
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func clearCart(ctx context.Context, carts port.CartRepository, cart *domain.Cart, now time.Time) error {
	cart.Clear(now)
	if err := carts.DeleteLines(ctx, cart.ID); err != nil {
		return err
	}
	return carts.Touch(ctx, cart.ID, now)
}
