//go:build integration

package storage

import (
	"context"
	"database/sql"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/core/service"
	"github.com/rl1809/ebook-shop/internal/port"
)

func setupMySQL(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("ebookshop"),
		tcmysql.WithUsername("shop"),
		tcmysql.WithPassword("shop"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db, log.New(io.Discard, "", 0)))
	return db
}

func TestMySQLIntegration_PendingSlotIsUnique(t *testing.T) {
	db := setupMySQL(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	require.NoError(t, adapter.SeedCatalog(ctx, []domain.Ebook{
		{ID: 1, Title: "Go in Practice", Author: "A", Price: decimal.NewFromInt(9900), Status: domain.EbookStatusActive},
	}))

	newOrder := func(id, number string) *domain.Order {
		line, err := domain.NewOrderLine(1, "Go in Practice", decimal.NewFromInt(9900), 1)
		require.NoError(t, err)
		o, err := domain.NewOrder(id, "shopper-1", number, domain.OrderSourceCart, []domain.OrderLine{line}, time.Now())
		require.NoError(t, err)
		return o
	}

	first := newOrder("00000000-0000-0000-0000-000000000001", "ORD-1")
	require.NoError(t, adapter.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.Orders().Create(ctx, first)
	}))

	err := adapter.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.Orders().Create(ctx, newOrder("00000000-0000-0000-0000-000000000002", "ORD-2"))
	})
	assert.ErrorIs(t, err, port.ErrDuplicateKey)

	// leaving PENDING frees the slot
	require.NoError(t, first.Cancel(time.Now()))
	require.NoError(t, adapter.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.Orders().UpdateStatus(ctx, first, domain.OrderStatusPending)
	}))
	require.NoError(t, adapter.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		return repos.Orders().Create(ctx, newOrder("00000000-0000-0000-0000-000000000003", "ORD-3"))
	}))

	var pending *domain.Order
	require.NoError(t, adapter.Do(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		pending, err = repos.Orders().FindLatestPending(ctx, "shopper-1")
		return err
	}))
	require.NotNil(t, pending)
	assert.Equal(t, "ORD-3", pending.OrderNumber)
	require.Len(t, pending.Lines, 1)
	assert.Equal(t, "9900.00", pending.Lines[0].Price().StringFixed(2))
}

func TestMySQLIntegration_TokenConsumedOnce(t *testing.T) {
	db := setupMySQL(t)
	store := NewMySQLTokenStore(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, domain.DownloadToken{
		ID:        "00000000-0000-0000-0000-0000000000aa",
		ShopperID: "shopper-1",
		OrderID:   "00000000-0000-0000-0000-000000000001",
		EbookID:   1,
		Value:     "DT-RACE",
		ExpiresAt: now.Add(10 * time.Minute),
		IssuedAt:  now,
	}))

	var (
		wg      sync.WaitGroup
		success int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := store.Consume(ctx, "DT-RACE"); err == nil && ok {
				atomic.AddInt64(&success, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), success)
}

func newIntegrationServices(t *testing.T, db *sql.DB) (*service.CartService, *service.OrderService) {
	t.Helper()
	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.SeedCatalog(context.Background(), []domain.Ebook{
		{ID: 1, Title: "Go in Practice", Author: "A", Price: decimal.NewFromInt(9900), Status: domain.EbookStatusActive},
		{ID: 2, Title: "Concurrency in Go", Author: "B", Price: decimal.NewFromInt(12900), Status: domain.EbookStatusActive},
	}))

	cfg := service.DefaultConfig()
	orders := service.NewOrderService(adapter, adapter, cfg, log.New(io.Discard, "", 0), 100)
	t.Cleanup(orders.Close)
	return service.NewCartService(adapter, adapter, cfg), orders
}

// concurrentOrders runs create n times at once and collects the order ids.
func concurrentOrders(t *testing.T, n int, create func() (*domain.Order, error)) map[string]bool {
	t.Helper()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[string]bool)
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := create()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[o.ID] = true
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	return ids
}

func TestMySQLIntegration_ConcurrentDirectOrdersShareOnePending(t *testing.T) {
	db := setupMySQL(t)
	_, orders := newIntegrationServices(t, db)
	ctx := context.Background()

	ids := concurrentOrders(t, 10, func() (*domain.Order, error) {
		return orders.CreateDirectOrder(ctx, "shopper-1", 1)
	})
	assert.Len(t, ids, 1)

	summaries, err := orders.GetMyOrders(ctx, "shopper-1")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestMySQLIntegration_ConcurrentCartCheckoutsShareOnePending(t *testing.T) {
	db := setupMySQL(t)
	carts, orders := newIntegrationServices(t, db)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "shopper-1", 1, 2)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, "shopper-1", 2, 1)
	require.NoError(t, err)

	ids := concurrentOrders(t, 10, func() (*domain.Order, error) {
		return orders.CreateFromCart(ctx, "shopper-1")
	})
	require.Len(t, ids, 1)

	for id := range ids {
		o, err := orders.GetDetail(ctx, "shopper-1", id)
		require.NoError(t, err)
		assert.Equal(t, "32700.00", o.FinalAmount.StringFixed(2))
		require.Len(t, o.Lines, 2)
	}
	lines, err := carts.ListLines(ctx, "shopper-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	// a direct purchase of an ebook in that order returns it too
	direct, err := orders.CreateDirectOrder(ctx, "shopper-1", 2)
	require.NoError(t, err)
	assert.True(t, ids[direct.ID])
}
