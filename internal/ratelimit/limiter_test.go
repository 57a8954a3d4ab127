package ratelimit_test

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/ratelimit"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:1000", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.1.1.1:1000", "10.0.0.9"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "10.0.0.9"}, "1.1.1.1:1000", "10.0.0.1"},
		{"remote addr", nil, "192.168.1.5:4321", "192.168.1.5"},
		{"remote without port", nil, "192.168.1.5", "192.168.1.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, ratelimit.ClientIP(req))
		})
	}
}

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter(3, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2-i, d.Remaining)
		now = now.Add(10 * time.Second)
	}

	d, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 3, d.Limit)
	require.Equal(t, 31*time.Second, d.RetryAfter)

	other, err := limiter.Allow(ctx, "other-ip")
	require.NoError(t, err)
	require.True(t, other.Allowed, "keys are independent")

	now = now.Add(31 * time.Second)
	d, err = limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	require.True(t, d.Allowed, "oldest request left the window")
}

func TestMemoryLimiterPrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter(1, time.Minute).WithClock(func() time.Time { return now })

	_, err := limiter.Allow(context.Background(), "a")
	require.NoError(t, err)
	require.Zero(t, limiter.Prune())

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, limiter.Prune())
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	addr := os.Getenv("IMS_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("IMS_REDIS_TEST_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	limiter := ratelimit.NewRedisLimiter(client, 2, time.Minute)
	key := "test-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Positive(t, d.RetryAfter)
}
