package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

const mysqlDuplicateEntry = 1062

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLAdapter is the unit of work and catalog lookup over a MySQL database.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Do(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, mysqlRepos{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Lookup(ctx context.Context, ebookID int64) (domain.Ebook, error) {
	var (
		e      domain.Ebook
		author sql.NullString
		status string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, author, price, status
		FROM ebooks WHERE id = ?`, ebookID,
	).Scan(&e.ID, &e.Title, &author, &e.Price, &status)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ebook{}, port.ErrEbookNotFound
	}
	if err != nil {
		return domain.Ebook{}, fmt.Errorf("query ebook: %w", err)
	}

	e.Author = author.String
	e.Status = domain.ParseEbookStatus(status)
	return e, nil
}

// SeedCatalog upserts ebooks, keyed by id.
func (m *MySQLAdapter) SeedCatalog(ctx context.Context, ebooks []domain.Ebook) error {
	for _, e := range ebooks {
		_, err := m.db.ExecContext(ctx, `
			INSERT INTO ebooks (id, title, author, price, status)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE title = VALUES(title), author = VALUES(author),
				price = VALUES(price), status = VALUES(status)`,
			e.ID, e.Title, e.Author, e.Price, string(e.Status),
		)
		if err != nil {
			return fmt.Errorf("seed ebook %d: %w", e.ID, err)
		}
	}
	return nil
}

type mysqlRepos struct {
	q queryer
}

func (r mysqlRepos) Carts() port.CartRepository   { return &mysqlCartRepo{q: r.q} }
func (r mysqlRepos) Orders() port.OrderRepository { return &mysqlOrderRepo{q: r.q} }

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
