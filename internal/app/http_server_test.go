package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

func TestStartMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "http")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.Service, version.GetVersion())
	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthHandler)
	defer shutdownHTTP(srv, logger)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base+"/livez")

	cases := []struct {
		path string
		code int
		body string
	}{
		{path: "/metrics", code: http.StatusOK},
		{path: "/healthz", code: http.StatusOK},
		{path: "/readyz", code: http.StatusOK, body: "ready"},
		{path: "/livez", code: http.StatusOK, body: "ok"},
	}

	for _, tc := range cases {
		resp, err := http.Get(base + tc.path)
		require.NoError(t, err, tc.path)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		require.Equal(t, tc.code, resp.StatusCode, tc.path)
		require.NotEmpty(t, body, tc.path)
		if tc.body != "" {
			require.Equal(t, tc.body, string(body), tc.path)
		}
	}
}

func TestStartMetricsServer_ReadinessFailsOnUnhealthyStorage(t *testing.T) {
	logger := log.WithField("test", "http")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.Service, version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthHandler)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base+"/livez")

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	logger := log.WithField("test", "http")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	healthHandler := healthcheck.NewHandler(version.Service, version.GetVersion())
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthHandler)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base+"/livez")
	cancel()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 3*time.Second, 50*time.Millisecond)
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	logger := log.WithField("test", "http")

	// Не должно паниковать
	shutdownHTTP(nil, logger)
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)
}

func findFreePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}
