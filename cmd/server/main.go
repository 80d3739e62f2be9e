package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/ebook-shop/internal/adapter/events"
	"github.com/rl1809/ebook-shop/internal/adapter/handler"
	"github.com/rl1809/ebook-shop/internal/adapter/storage"
	"github.com/rl1809/ebook-shop/internal/config"
	"github.com/rl1809/ebook-shop/internal/core/service"
	"github.com/rl1809/ebook-shop/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger := log.New(os.Stdout, "[ebook-shop] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db      *sql.DB
		rdb     *redis.Client
		uow     port.UnitOfWork
		catalog port.CatalogLookup
		tokens  port.TokenStore
	)

	switch cfg.StoreDriver {
	case config.StoreMySQL:
		db = openMySQL(ctx, cfg.MySQLDSN, logger)
		if err := storage.RunMigrations(db, logger); err != nil {
			logger.Fatalf("failed to migrate: %v", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if cfg.SeedCatalog {
			if err := mysqlAdapter.SeedCatalog(ctx, devCatalog); err != nil {
				logger.Fatalf("failed to seed catalog: %v", err)
			}
			logger.Printf("seeded %d ebooks", len(devCatalog))
		}
		uow, catalog, tokens = mysqlAdapter, mysqlAdapter, storage.NewMySQLTokenStore(db)
	case config.StoreMemory:
		mem := storage.NewMemoryStore()
		if cfg.SeedCatalog {
			for _, e := range devCatalog {
				mem.PutEbook(e)
			}
			logger.Printf("seeded %d ebooks", len(devCatalog))
		}
		uow, catalog, tokens = mem, mem, mem
		logger.Println("using in-memory store")
	}

	if cfg.TokenBackend == config.TokensRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		logger.Println("connected to redis")
		tokens = storage.NewRedisAdapter(rdb)
	}

	// Initialize services
	svcCfg := cfg.ServiceConfig()
	cartService := service.NewCartService(uow, catalog, svcCfg)
	orderService := service.NewOrderService(uow, catalog, svcCfg, logger, cfg.EventQueueSize)
	downloadService := service.NewDownloadService(uow, tokens, storage.NewFileContentStore(cfg.ContentDir), svcCfg, logger)

	// Start event workers
	var publisher port.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		logger.Printf("publishing order events to kafka topic %s", cfg.KafkaTopic)
	}
	workers := events.StartWorkers(cfg.EventWorkers, orderService.GetEventQueue(), publisher, logger)

	metrics := handler.NewServerMetrics()
	auth := handler.NewAuthenticator(cfg.JWTSecret)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor(), auth.UnaryServerInterceptor()),
	)
	handler.RegisterGRPCHandler(grpcServer, handler.NewGRPCHandler(orderService, downloadService))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.OrderServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, orderService, downloadService, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(auth, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sweepLoop(gctx, downloadService, cfg.SweepInterval, logger)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
		logger.Println("HTTP server stopped")

		healthServer.Shutdown()
		grpcServer.GracefulStop()
		logger.Println("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("server error: %v", err)
	}

	// Close event queue and wait for workers
	orderService.Close()
	workers.Wait()
	if err := publisher.Close(); err != nil {
		logger.Printf("close publisher: %v", err)
	}
	logger.Println("workers stopped")

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Println("connections closed")
}

func openMySQL(ctx context.Context, dsn string, logger *log.Logger) *sql.DB {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		logger.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("failed to ping mysql: %v", err)
	}
	logger.Println("connected to mysql")
	return db
}

func sweepLoop(ctx context.Context, downloads *service.DownloadService, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := downloads.SweepExpired(ctx)
			if err != nil {
				logger.Printf("sweep expired tokens: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("swept %d expired tokens", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
