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

type mysqlCartRepo struct {
	q queryer
}

func (r *mysqlCartRepo) FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error) {
	var c domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, shopper_id, updated_at
		FROM carts WHERE shopper_id = ?
		FOR UPDATE`, shopperID,
	).Scan(&c.ID, &c.ShopperID, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, ebook_id, quantity, added_at
		FROM cart_lines WHERE cart_id = ?
		ORDER BY added_at, id`, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart_lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.EbookID, &l.Quantity, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart_line: %w", err)
		}
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &c, nil
}

func (r *mysqlCartRepo) Create(ctx context.Context, cart *domain.Cart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, shopper_id, updated_at)
		VALUES (?, ?, ?)`,
		cart.ID, cart.ShopperID, cart.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("insert cart: %w", port.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *mysqlCartRepo) SaveLine(ctx context.Context, line domain.CartLine) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_lines (id, cart_id, ebook_id, quantity, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
		line.ID, line.CartID, line.EbookID, line.Quantity, line.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cart_line: %w", err)
	}
	return nil
}

func (r *mysqlCartRepo) DeleteLine(ctx context.Context, cartID string, ebookID int64) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE cart_id = ? AND ebook_id = ?`,
		cartID, ebookID,
	)
	if err != nil {
		return fmt.Errorf("delete cart_line: %w", err)
	}
	return nil
}

func (r *mysqlCartRepo) DeleteLines(ctx context.Context, cartID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart_lines: %w", err)
	}
	return nil
}

func (r *mysqlCartRepo) Touch(ctx context.Context, cartID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, at, cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
