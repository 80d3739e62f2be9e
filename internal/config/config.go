package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rl1809/ebook-shop/internal/core/service"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	TokensMySQL = "mysql"
	TokensRedis = "redis"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mysql"`
	MySQLDSN    string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/ebookshop?parseTime=true"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// TokenBackend "mysql" means the configured store, which is the memory
	// store when STORE_DRIVER=memory.
	TokenBackend string `env:"TOKEN_BACKEND" envDefault:"mysql"`

	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"10m"`
	OrderNumberPrefix string        `env:"ORDER_NUMBER_PREFIX" envDefault:"ORD-"`
	TokenPrefix       string        `env:"TOKEN_PREFIX" envDefault:"DT-"`
	ContentDir        string        `env:"CONTENT_DIR" envDefault:"./content"`

	// JWTSecret enables bearer-token identity. When empty the X-Shopper-ID
	// header is trusted as-is.
	JWTSecret string `env:"JWT_SECRET"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"ebookshop.orders"`
	EventWorkers   int      `env:"EVENT_WORKERS" envDefault:"4"`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"1000"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SeedCatalog   bool          `env:"SEED_CATALOG" envDefault:"false"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreMySQL, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMySQL, StoreMemory, c.StoreDriver))
	}
	switch c.TokenBackend {
	case TokensMySQL, TokensRedis:
	default:
		errs = append(errs, fmt.Errorf("TOKEN_BACKEND must be %q or %q, got %q", TokensMySQL, TokensRedis, c.TokenBackend))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.EventWorkers < 1 {
		errs = append(errs, errors.New("EVENT_WORKERS must be at least 1"))
	}
	if c.EventQueueSize < 1 {
		errs = append(errs, errors.New("EVENT_QUEUE_SIZE must be at least 1"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// ServiceConfig is the subset the core services consume.
func (c Config) ServiceConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.TokenTTL = c.TokenTTL
	cfg.OrderNumberPrefix = c.OrderNumberPrefix
	cfg.TokenPrefix = c.TokenPrefix
	return cfg
}
