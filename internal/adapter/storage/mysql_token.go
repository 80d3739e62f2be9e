package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

// MySQLTokenStore keeps download tokens in the download_tokens table. Rows
// outlive their expiry until DeleteExpired removes them.
type MySQLTokenStore struct {
	db *sql.DB
}

func NewMySQLTokenStore(db *sql.DB) *MySQLTokenStore {
	return &MySQLTokenStore{db: db}
}

func (s *MySQLTokenStore) Save(ctx context.Context, t domain.DownloadToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_tokens (id, shopper_id, order_id, ebook_id, token_value, expires_at, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ShopperID, t.OrderID, t.EbookID, t.Value, t.ExpiresAt, t.IssuedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("insert download_token: %w", port.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert download_token: %w", err)
	}
	return nil
}

func (s *MySQLTokenStore) Find(ctx context.Context, value string) (*domain.DownloadToken, error) {
	var t domain.DownloadToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, order_id, ebook_id, token_value, expires_at, issued_at
		FROM download_tokens WHERE token_value = ?`, value,
	).Scan(&t.ID, &t.ShopperID, &t.OrderID, &t.EbookID, &t.Value, &t.ExpiresAt, &t.IssuedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select download_token: %w", err)
	}
	return &t, nil
}

// Consume deletes the row; of several concurrent callers only one sees a
// row affected.
func (s *MySQLTokenStore) Consume(ctx context.Context, value string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM download_tokens WHERE token_value = ?`, value)
	if err != nil {
		return false, fmt.Errorf("delete download_token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *MySQLTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM download_tokens WHERE expires_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
