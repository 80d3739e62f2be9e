package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

const (
	tokenKeyPrefix = "dltoken:"

	// tokenRetention keeps an expired token readable so redemption can
	// report it as expired rather than unknown.
	tokenRetention = 24 * time.Hour
)

// RedisAdapter is a token store backed by Redis. Keys expire on their own, so
// it does not implement port.TokenSweeper.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

type redisToken struct {
	ID        string    `json:"id"`
	ShopperID string    `json:"shopperId"`
	OrderID   string    `json:"orderId"`
	EbookID   int64     `json:"ebookId"`
	ExpiresAt time.Time `json:"expiresAt"`
	IssuedAt  time.Time `json:"issuedAt"`
}

func (r *RedisAdapter) Save(ctx context.Context, t domain.DownloadToken) error {
	payload, err := json.Marshal(redisToken{
		ID:        t.ID,
		ShopperID: t.ShopperID,
		OrderID:   t.OrderID,
		EbookID:   t.EbookID,
		ExpiresAt: t.ExpiresAt,
		IssuedAt:  t.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	ttl := t.ExpiresAt.Sub(t.IssuedAt) + tokenRetention
	ok, err := r.client.SetNX(ctx, tokenKeyPrefix+t.Value, payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token %s: %w", t.Value, port.ErrDuplicateKey)
	}
	return nil
}

func (r *RedisAdapter) Find(ctx context.Context, value string) (*domain.DownloadToken, error) {
	payload, err := r.client.Get(ctx, tokenKeyPrefix+value).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rt redisToken
	if err := json.Unmarshal(payload, &rt); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &domain.DownloadToken{
		ID:        rt.ID,
		ShopperID: rt.ShopperID,
		OrderID:   rt.OrderID,
		EbookID:   rt.EbookID,
		Value:     value,
		ExpiresAt: rt.ExpiresAt,
		IssuedAt:  rt.IssuedAt,
	}, nil
}

// Consume relies on DEL being atomic: concurrent callers race for the single
// deletion.
func (r *RedisAdapter) Consume(ctx context.Context, value string) (bool, error) {
	n, err := r.client.Del(ctx, tokenKeyPrefix+value).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
