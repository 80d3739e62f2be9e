package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/port"
)

var orderRowColumns = []string{
	"id", "shopper_id", "order_number", "source", "status",
	"total_amount", "final_amount", "created_at", "paid_at", "canceled_at",
}

func sqlPattern(s string) string {
	return regexp.QuoteMeta(s)
}

func TestMySQLAdapterDo_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	now := time.Now()
	cart := &domain.Cart{ID: "cart-1", ShopperID: "shopper-1", UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("INSERT INTO carts (id, shopper_id, updated_at)")).
		WithArgs("cart-1", "shopper-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = adapter.Do(context.Background(), func(ctx context.Context, repos port.Repositories) error {
		return repos.Carts().Create(ctx, cart)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAdapterDo_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	cart := &domain.Cart{ID: "cart-1", ShopperID: "shopper-1", UpdatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("INSERT INTO carts (id, shopper_id, updated_at)")).
		WillReturnError(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err = adapter.Do(context.Background(), func(ctx context.Context, repos port.Repositories) error {
		return repos.Carts().Create(ctx, cart)
	})
	assert.ErrorIs(t, err, port.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	mock.ExpectQuery(sqlPattern("FROM ebooks WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author", "price", "status"}).
			AddRow(1, "Go in Practice", nil, "9900.00", "active"))
	mock.ExpectQuery(sqlPattern("FROM ebooks WHERE id = ?")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author", "price", "status"}))

	e, err := adapter.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Go in Practice", e.Title)
	assert.Empty(t, e.Author)
	assert.Equal(t, domain.EbookStatusActive, e.Status)
	assert.True(t, e.Price.Equal(decimal.NewFromInt(9900)))

	_, err = adapter.Lookup(ctx, 2)
	assert.ErrorIs(t, err, port.ErrEbookNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCartRepo_FindByShopper(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &mysqlCartRepo{q: db}
	now := time.Now()

	mock.ExpectQuery(sqlPattern("FROM carts WHERE shopper_id = ?")).
		WithArgs("shopper-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shopper_id", "updated_at"}).
			AddRow("cart-1", "shopper-1", now))
	mock.ExpectQuery(sqlPattern("FROM cart_lines WHERE cart_id = ?")).
		WithArgs("cart-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "cart_id", "ebook_id", "quantity", "added_at"}).
			AddRow("line-1", "cart-1", 1, 2, now).
			AddRow("line-2", "cart-1", 2, 1, now))

	cart, err := repo.FindByShopper(context.Background(), "shopper-1")
	require.NoError(t, err)
	require.NotNil(t, cart)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, int64(1), cart.Lines[0].EbookID)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCartRepo_FindByShopperMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("FROM carts WHERE shopper_id = ?")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shopper_id", "updated_at"}))

	cart, err := (&mysqlCartRepo{q: db}).FindByShopper(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, cart)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCartRepo_SaveLineUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	line := domain.CartLine{ID: "line-1", CartID: "cart-1", EbookID: 7, Quantity: 3, AddedAt: now}

	mock.ExpectExec(sqlPattern("ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)")).
		WithArgs("line-1", "cart-1", int64(7), 3, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, (&mysqlCartRepo{q: db}).SaveLine(context.Background(), line))
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMySQLTestOrder(t *testing.T) *domain.Order {
	t.Helper()
	l1, err := domain.NewOrderLine(1, "Go in Practice", decimal.NewFromInt(9900), 2)
	require.NoError(t, err)
	l2, err := domain.NewOrderLine(2, "Concurrency", decimal.NewFromInt(12900), 1)
	require.NoError(t, err)
	o, err := domain.NewOrder("order-1", "shopper-1", "ORD-0123456789ABCDEF", domain.OrderSourceCart,
		[]domain.OrderLine{l1, l2}, time.Now())
	require.NoError(t, err)
	return o
}

func TestMySQLOrderRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	o := newMySQLTestOrder(t)

	mock.ExpectExec(sqlPattern("INSERT INTO orders (")).
		WithArgs(o.ID, o.ShopperID, o.OrderNumber, "CART", "PENDING", "cart:shopper-1",
			o.TotalAmount, o.FinalAmount, o.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(sqlPattern("INSERT INTO order_lines (")).
		WithArgs(sqlmock.AnyArg(), o.ID, 0, int64(1), "Go in Practice", sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(sqlPattern("INSERT INTO order_lines (")).
		WithArgs(sqlmock.AnyArg(), o.ID, 1, int64(2), "Concurrency", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, (&mysqlOrderRepo{q: db}).Create(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_CreatePendingSlotTaken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(sqlPattern("INSERT INTO orders (")).
		WillReturnError(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry for key 'uq_orders_pending'"})

	err = (&mysqlOrderRepo{q: db}).Create(context.Background(), newMySQLTestOrder(t))
	assert.ErrorIs(t, err, port.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Now().Add(-time.Hour)
	paid := time.Now()

	mock.ExpectQuery(sqlPattern("FROM orders WHERE id = ?")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow("order-1", "shopper-1", "ORD-1", "DIRECT", "PAID", "9900.00", "9900.00", created, paid, nil))
	mock.ExpectQuery(sqlPattern("FROM order_lines WHERE order_id = ?")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"ebook_id", "title_snapshot", "price_snapshot", "quantity", "line_total"}).
			AddRow(1, "Go in Practice", "9900.00", 1, "9900.00"))

	o, err := (&mysqlOrderRepo{q: db}).FindByID(context.Background(), "order-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, domain.OrderStatusPaid, o.Status)
	assert.Equal(t, domain.OrderSourceDirect, o.Source)
	require.NotNil(t, o.PaidAt)
	assert.Nil(t, o.CanceledAt)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "9900.00", o.Lines[0].LineTotal().StringFixed(2))
	assert.Empty(t, o.PendingKey())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_FindByIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("FROM orders WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	o, err := (&mysqlOrderRepo{q: db}).FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, o)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_FindByIDUnknownStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("FROM orders WHERE id = ?")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow("order-1", "shopper-1", "ORD-1", "CART", "REFUNDED", "9900.00", "9900.00", time.Now(), nil, nil))

	o, err := (&mysqlOrderRepo{q: db}).FindByID(context.Background(), "order-1")
	assert.ErrorContains(t, err, `unknown status "REFUNDED"`)
	assert.Nil(t, o)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_FindPendingByKeyLocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("FROM orders WHERE pending_key = ? FOR SHARE")).
		WithArgs("direct:shopper-1:1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow("order-1", "shopper-1", "ORD-1", "DIRECT", "PENDING", "9900.00", "9900.00", time.Now(), nil, nil))
	mock.ExpectQuery(sqlPattern("ORDER BY position FOR SHARE")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"ebook_id", "title_snapshot", "price_snapshot", "quantity", "line_total"}).
			AddRow(1, "Go in Practice", "9900.00", 1, "9900.00"))

	o, err := (&mysqlOrderRepo{q: db}).FindPendingByKey(context.Background(), "direct:shopper-1:1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "direct:shopper-1:1", o.PendingKey())
	require.Len(t, o.Lines, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_FindPendingContaining(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("AND EXISTS (SELECT 1 FROM order_lines l WHERE l.order_id = orders.id AND l.ebook_id = ?)")).
		WithArgs("shopper-1", int64(1)).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow("order-1", "shopper-1", "ORD-1", "CART", "PENDING", "32700.00", "32700.00", time.Now(), nil, nil))
	mock.ExpectQuery(sqlPattern("FROM order_lines WHERE order_id = ?")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"ebook_id", "title_snapshot", "price_snapshot", "quantity", "line_total"}).
			AddRow(1, "Go in Practice", "9900.00", 2, "19800.00").
			AddRow(2, "Concurrency in Go", "12900.00", 1, "12900.00"))

	o, err := (&mysqlOrderRepo{q: db}).FindPendingContaining(context.Background(), "shopper-1", 1)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, domain.OrderSourceCart, o.Source)
	assert.True(t, o.Contains(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_HasPaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(sqlPattern("SELECT EXISTS")).
		WithArgs("shopper-1", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	paid, err := (&mysqlOrderRepo{q: db}).HasPaid(context.Background(), "shopper-1", 5)
	require.NoError(t, err)
	assert.True(t, paid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &mysqlOrderRepo{q: db}
	o := newMySQLTestOrder(t)
	require.NoError(t, o.MarkPaid(time.Now()))

	mock.ExpectExec(sqlPattern("UPDATE orders")).
		WithArgs("PAID", nil, sqlmock.AnyArg(), nil, o.ID, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern("UPDATE orders")).
		WithArgs("PAID", nil, sqlmock.AnyArg(), nil, o.ID, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), o, domain.OrderStatusPending))

	err = repo.UpdateStatus(context.Background(), o, domain.OrderStatusPending)
	assert.ErrorIs(t, err, port.ErrOptimisticLock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderRepo_ListByShopper(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(sqlPattern("FROM orders WHERE shopper_id = ?")).
		WithArgs("shopper-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "status", "total_amount", "final_amount", "created_at"}).
			AddRow("order-2", "ORD-2", "PENDING", "10.00", "10.00", now).
			AddRow("order-1", "ORD-1", "CANCELED", "20.00", "20.00", now.Add(-time.Hour)))

	orders, err := (&mysqlOrderRepo{q: db}).ListByShopper(context.Background(), "shopper-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order-2", orders[0].ID)
	assert.Equal(t, domain.OrderStatusCanceled, orders[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLTokenStore_Consume(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewMySQLTokenStore(db)

	mock.ExpectExec(sqlPattern("DELETE FROM download_tokens WHERE token_value = ?")).
		WithArgs("DT-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern("DELETE FROM download_tokens WHERE token_value = ?")).
		WithArgs("DT-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Consume(context.Background(), "DT-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(context.Background(), "DT-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLTokenStore_FindAndSweep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewMySQLTokenStore(db)
	now := time.Now()

	mock.ExpectQuery(sqlPattern("FROM download_tokens WHERE token_value = ?")).
		WithArgs("DT-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shopper_id", "order_id", "ebook_id", "token_value", "expires_at", "issued_at"}).
			AddRow("tok-1", "shopper-1", "order-1", 3, "DT-1", now.Add(time.Minute), now))
	mock.ExpectQuery(sqlPattern("FROM download_tokens WHERE token_value = ?")).
		WithArgs("DT-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(sqlPattern("DELETE FROM download_tokens WHERE expires_at < ?")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	tok, err := store.Find(context.Background(), "DT-1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, int64(3), tok.EbookID)

	tok, err = store.Find(context.Background(), "DT-2")
	require.NoError(t, err)
	assert.Nil(t, tok)

	n, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateEntry(t *testing.T) {
	assert.True(t, isDuplicateEntry(&mysql.MySQLError{Number: mysqlDuplicateEntry}))
	assert.False(t, isDuplicateEntry(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateEntry(errors.New("boom")))
	assert.False(t, isDuplicateEntry(nil))
}
