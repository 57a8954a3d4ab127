package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/ratelimit"
)

func quietEntry() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "app-test")
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	deps, err := initRuntimeDependencies(context.Background(), cfg, quietEntry())
	require.NoError(t, err)
	defer deps.close(quietEntry())

	require.NotNil(t, deps.products)
	require.NotNil(t, deps.orders)
	require.Nil(t, deps.closeFn)
	require.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
	require.IsType(t, &ratelimit.MemoryLimiter{}, deps.limiter)
}

func TestInitRuntimeDependencies_RedisLimiter(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	deps, err := initRuntimeDependencies(context.Background(), cfg, quietEntry())
	require.NoError(t, err)
	defer deps.close(quietEntry())

	require.NotNil(t, deps.redisClient)
	require.IsType(t, &ratelimit.RedisLimiter{}, deps.limiter)
}

func TestInitRuntimeDependencies_RateLimitDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PublicRateLimit = 0
	deps, err := initRuntimeDependencies(context.Background(), cfg, quietEntry())
	require.NoError(t, err)
	require.Nil(t, deps.limiter)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverPostgres}, quietEntry())
	require.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: "sqlite"}, quietEntry())
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("IMS_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("IMS_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, quietEntry())
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(quietEntry())

	require.NotNil(t, deps.closeFn)
	require.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
}
