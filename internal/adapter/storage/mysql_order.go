package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

const (
	orderColumns = `id, shopper_id, order_number, source, status, total_amount, final_amount, created_at, paid_at, canceled_at`

	forShare = ` FOR SHARE`
)

type mysqlOrderRepo struct {
	q queryer
}

func (r *mysqlOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, shopper_id, order_number, source, status, pending_key, total_amount, final_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ShopperID, o.OrderNumber, string(o.Source), string(o.Status), nullString(o.PendingKey()),
		o.TotalAmount, o.FinalAmount, o.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("insert order: %w", port.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, position, ebook_id, title_snapshot, price_snapshot, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), o.ID, i, l.EbookID(), l.Title(), l.Price(), l.Quantity(), l.LineTotal(),
		)
		if err != nil {
			return fmt.Errorf("insert order_line: %w", err)
		}
	}
	return nil
}

func (r *mysqlOrderRepo) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.findOne(ctx, "", `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
}

func (r *mysqlOrderRepo) FindLatestPending(ctx context.Context, shopperID string) (*domain.Order, error) {
	return r.findOne(ctx, "", `SELECT `+orderColumns+` FROM orders
		WHERE shopper_id = ? AND status = 'PENDING'
		ORDER BY created_at DESC, id DESC LIMIT 1`, shopperID)
}

// FindPendingByKey is a locking read so it sees an order committed after the
// transaction's snapshot was taken.
func (r *mysqlOrderRepo) FindPendingByKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.findOne(ctx, forShare, `SELECT `+orderColumns+` FROM orders WHERE pending_key = ?`, key)
}

func (r *mysqlOrderRepo) FindPendingContaining(ctx context.Context, shopperID string, ebookID int64) (*domain.Order, error) {
	return r.findOne(ctx, "", `SELECT `+orderColumns+` FROM orders
		WHERE shopper_id = ? AND status = 'PENDING'
		AND EXISTS (SELECT 1 FROM order_lines l WHERE l.order_id = orders.id AND l.ebook_id = ?)
		ORDER BY created_at DESC, id DESC LIMIT 1`, shopperID, ebookID)
}

func (r *mysqlOrderRepo) HasPaid(ctx context.Context, shopperID string, ebookID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders o
			JOIN order_lines l ON l.order_id = o.id
			WHERE o.shopper_id = ? AND o.status = 'PAID' AND l.ebook_id = ?
		)`, shopperID, ebookID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select paid order: %w", err)
	}
	return exists, nil
}

func (r *mysqlOrderRepo) ListByShopper(ctx context.Context, shopperID string) ([]domain.OrderSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_number, status, total_amount, final_amount, created_at
		FROM orders WHERE shopper_id = ?
		ORDER BY created_at DESC, id DESC`, shopperID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.OrderSummary{}
	for rows.Next() {
		var (
			s      domain.OrderSummary
			status string
		)
		if err := rows.Scan(&s.ID, &s.OrderNumber, &status, &s.TotalAmount, &s.FinalAmount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		s.Status = domain.OrderStatus(status)
		if !s.Status.Valid() {
			return nil, fmt.Errorf("order %s: unknown status %q", s.ID, status)
		}
		orders = append(orders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return orders, nil
}

func (r *mysqlOrderRepo) UpdateStatus(ctx context.Context, o *domain.Order, from domain.OrderStatus) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, pending_key = ?, paid_at = ?, canceled_at = ?
		WHERE id = ? AND status = ?`,
		string(o.Status), nullString(o.PendingKey()), toNullTime(o.PaidAt), toNullTime(o.CanceledAt),
		o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

// findOne loads an order and its lines. lock is appended to both queries so the
// lines come from the same view as the header.
func (r *mysqlOrderRepo) findOne(ctx context.Context, lock, query string, args ...any) (*domain.Order, error) {
	var (
		o                  domain.Order
		source, status     string
		paidAt, canceledAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query+lock, args...).Scan(
		&o.ID, &o.ShopperID, &o.OrderNumber, &source, &status,
		&o.TotalAmount, &o.FinalAmount, &o.CreatedAt, &paidAt, &canceledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.Source = domain.OrderSource(source)
	o.Status = domain.OrderStatus(status)
	if !o.Status.Valid() {
		return nil, fmt.Errorf("order %s: unknown status %q", o.ID, status)
	}
	o.PaidAt = fromNullTime(paidAt)
	o.CanceledAt = fromNullTime(canceledAt)

	lines, err := r.lines(ctx, o.ID, lock)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (r *mysqlOrderRepo) lines(ctx context.Context, orderID, lock string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT ebook_id, title_snapshot, price_snapshot, quantity, line_total
		FROM order_lines WHERE order_id = ?
		ORDER BY position`+lock, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order_lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			ebookID    int64
			title      string
			price, sum decimal.Decimal
			quantity   int
		)
		if err := rows.Scan(&ebookID, &title, &price, &quantity, &sum); err != nil {
			return nil, fmt.Errorf("scan order_line: %w", err)
		}
		lines = append(lines, domain.RestoreOrderLine(ebookID, title, price, quantity, sum))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lines, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
