package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

type DownloadService struct {
	uow     port.UnitOfWork
	tokens  port.TokenStore
	content port.ContentStore
	cfg     Config
	logger  *log.Logger
}

func NewDownloadService(uow port.UnitOfWork, tokens port.TokenStore, content port.ContentStore, cfg Config, logger *log.Logger) *DownloadService {
	return &DownloadService{
		uow:     uow,
		tokens:  tokens,
		content: content,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Issue grants a single-use download credential for an ebook in one of the
// shopper's PAID orders.
func (s *DownloadService) Issue(ctx context.Context, shopperID, orderID string, ebookID int64) (*domain.IssuedToken, error) {
	if err := requireShopper(shopperID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	if err := s.authorize(ctx, shopperID, orderID, ebookID); err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	token := domain.DownloadToken{
		ID:        uuid.NewString(),
		ShopperID: shopperID,
		OrderID:   orderID,
		EbookID:   ebookID,
		Value:     s.cfg.TokenPrefix + upperHex(32),
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		IssuedAt:  now,
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return &domain.IssuedToken{Token: token.Value, ExpiresAt: token.ExpiresAt}, nil
}

// Redeem consumes the token and returns what it unlocks. An expired token is
// left in place for the sweeper.
func (s *DownloadService) Redeem(ctx context.Context, value string) (*domain.DownloadDescriptor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}

	token, err := s.tokens.Find(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	if token == nil {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	if token.Expired(s.cfg.Now()) {
		return nil, ErrExpired
	}

	// the order may have changed since issuance
	if err := s.authorize(ctx, token.ShopperID, token.OrderID, token.EbookID); err != nil {
		return nil, err
	}

	consumed, err := s.tokens.Consume(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if !consumed {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}

	filename := domain.ContentFilename(token.EbookID)
	return &domain.DownloadDescriptor{
		EbookID:    token.EbookID,
		Filename:   filename,
		ContentKey: filename,
	}, nil
}

// Download redeems the token and loads the file. A storage failure leaves the
// token consumed; the shopper has to issue a new one.
func (s *DownloadService) Download(ctx context.Context, value string) (*domain.DownloadFile, error) {
	desc, err := s.Redeem(ctx, value)
	if err != nil {
		return nil, err
	}
	content, err := s.content.Load(ctx, desc.ContentKey)
	if err != nil {
		s.logger.Printf("load content %s: %v", desc.ContentKey, err)
		return nil, fmt.Errorf("%w: load %s: %v", ErrInternal, desc.Filename, err)
	}
	return &domain.DownloadFile{Filename: desc.Filename, Content: content}, nil
}

// SweepExpired deletes tokens past their expiry when the store keeps them
// indefinitely. It reports 0 for stores that expire records themselves.
func (s *DownloadService) SweepExpired(ctx context.Context) (int64, error) {
	sweeper, ok := s.tokens.(port.TokenSweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.DeleteExpired(ctx, s.cfg.Now())
}

func (s *DownloadService) authorize(ctx context.Context, shopperID, orderID string, ebookID int64) error {
	return s.uow.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		o, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil || !o.OwnedBy(shopperID) {
			return errOrderNotFound
		}
		if o.Status != domain.OrderStatusPaid {
			return fmt.Errorf("%w: order %s is %s, not PAID", ErrValidation, o.OrderNumber, o.Status)
		}
		if !o.Contains(ebookID) {
			return fmt.Errorf("%w: ebook %d is not in order %s", ErrValidation, ebookID, o.OrderNumber)
		}
		return nil
	})
}
