package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/ebook-shop/internal/adapter/storage"
	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/core/service"
)

const (
	shopperID     = "stress-shopper"
	ebookID       = 1
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Initialize stores and services
	store := storage.NewMemoryStore()
	store.PutEbook(domain.Ebook{ID: ebookID, Title: "Stress Testing in Go", Price: decimal.NewFromInt(9900), Status: domain.EbookStatusActive})
	tokens := storage.NewRedisAdapter(rdb)
	quiet := log.New(io.Discard, "", 0)
	cfg := service.DefaultConfig()

	carts := service.NewCartService(store, store, cfg)
	orders := service.NewOrderService(store, store, cfg, quiet, queueSize)
	defer orders.Close()
	downloads := service.NewDownloadService(store, tokens, storage.NewFileContentStore(os.TempDir()), cfg, quiet)

	// Drain the event queue in background
	go func() {
		for range orders.GetEventQueue() {
		}
	}()

	if _, err := carts.AddItem(ctx, shopperID, ebookID, 1); err != nil {
		log.Fatalf("failed to fill cart: %v", err)
	}

	// Phase 1: concurrent checkout of one cart
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		orderIDs = map[string]bool{}
	)
	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := orders.CreateFromCart(ctx, shopperID)
			if err != nil {
				log.Printf("checkout failed: %v", err)
				return
			}
			mu.Lock()
			orderIDs[o.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	checkoutElapsed := time.Since(start)

	if len(orderIDs) != 1 {
		log.Fatalf("FAIL: expected 1 pending order, got %d", len(orderIDs))
	}
	var orderID string
	for id := range orderIDs {
		orderID = id
	}

	if _, err := orders.MarkPaid(ctx, shopperID, orderID); err != nil {
		log.Fatalf("failed to pay order: %v", err)
	}
	issued, err := downloads.Issue(ctx, shopperID, orderID, ebookID)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	// Phase 2: concurrent redemption of one token
	var (
		successCount  atomic.Int32
		notFoundCount atomic.Int32
		otherCount    atomic.Int32
	)
	start = time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := downloads.Redeem(ctx, issued.Token)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrNotFound):
				notFoundCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}
	wg.Wait()
	redeemElapsed := time.Since(start)

	// Results
	success := successCount.Load()
	notFound := notFoundCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Concurrent checkouts:  %d -> %d order(s) in %v\n", totalRequests, len(orderIDs), checkoutElapsed)
	fmt.Printf("Concurrent redeems:    %d\n", totalRequests)
	fmt.Printf("Successful:            %d\n", success)
	fmt.Printf("Not found:             %d\n", notFound)
	fmt.Printf("Other errors:          %d\n", otherCount.Load())
	fmt.Printf("Duration:              %v\n", redeemElapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && notFound == totalRequests-1 {
		fmt.Println("PASS: token redeemed exactly once")
	} else {
		fmt.Printf("FAIL: expected 1 success/%d not found, got %d/%d\n", totalRequests-1, success, notFound)
	}

	// Verify the token is gone from Redis
	left, _ := tokens.Find(ctx, issued.Token)
	if left == nil {
		fmt.Println("PASS: token removed from redis")
	} else {
		fmt.Println("FAIL: token still present in redis")
	}
}
