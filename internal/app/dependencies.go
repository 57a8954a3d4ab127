package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/ratelimit"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/storage/postgres"
)

const storageInitTimeout = 10 * time.Second

// runtimeDependencies — хранилища и внешние клиенты, выбранные конфигурацией.
type runtimeDependencies struct {
	products       domain.ProductRepository
	orders         domain.OrderRepository
	storageChecker healthcheck.Checker
	limiter        ratelimit.Limiter
	redisClient    *redis.Client
	closeFn        func() error
}

// initRuntimeDependencies поднимает хранилище и лимитер согласно cfg.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.products = memory.NewProductRepository()
		deps.orders = memory.NewOrderRepository()
		deps.storageChecker = healthcheck.NewSimpleChecker("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}
		initCtx, cancel := context.WithTimeout(ctx, storageInitTimeout)
		defer cancel()

		store, err := postgres.Open(initCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(initCtx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		deps.products = postgres.NewProductRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.storageChecker = healthcheck.NewSimpleChecker("storage", store.Ping)
		deps.closeFn = store.Close
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	deps.limiter = initLimiter(cfg, deps, logger)
	return deps, nil
}

// initLimiter выбирает Redis-лимитер при заданном IMS_REDIS_ADDR, иначе лимитер в памяти.
func initLimiter(cfg Config, deps *runtimeDependencies, logger *log.Entry) ratelimit.Limiter {
	if cfg.PublicRateLimit == 0 {
		logger.Warn("public qr lookup is not rate limited")
		return nil
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg.PublicRateLimit, ratelimit.DefaultWindow)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	deps.redisClient = client
	logger.WithField("redis_addr", cfg.RedisAddr).Info("using redis rate limiter")
	return ratelimit.NewRedisLimiter(client, cfg.PublicRateLimit, ratelimit.DefaultWindow)
}

// close освобождает хранилище и клиента Redis.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.closeFn != nil {
		if err := d.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}
}
