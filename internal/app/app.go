package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/ims/internal/service/grpc"
	"github.com/vladislavdragonenkov/ims/internal/service/httpx"
	"github.com/vladislavdragonenkov/ims/internal/service/inventory"
	"github.com/vladislavdragonenkov/ims/internal/service/ordering"
	"github.com/vladislavdragonenkov/ims/internal/service/query"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

const shutdownTimeout = 5 * time.Second

// services — собранный прикладной слой поверх выбранных хранилищ.
type services struct {
	catalog *inventory.Service
	engine  *ordering.Engine
	reader  *query.Service
}

func buildServices(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, m *metrics.EngineMetrics, logger *log.Entry) services {
	catalogOpts := []inventory.Option{
		inventory.WithLogger(logger.WithField("component", "catalog")),
		inventory.WithMetrics(m),
	}
	engineOpts := []ordering.Option{
		ordering.WithLogger(logger.WithField("component", "order-engine")),
		ordering.WithCommitMode(cfg.CommitMode),
		ordering.WithMetrics(m),
	}
	if producer != nil {
		catalogOpts = append(catalogOpts, inventory.WithEventPublisher(producer, cfg.KafkaProductTopic))
		engineOpts = append(engineOpts, ordering.WithEventPublisher(producer, cfg.KafkaOrderTopic))
	}

	return services{
		catalog: inventory.NewService(deps.products, catalogOpts...),
		engine:  ordering.NewEngine(deps.products, deps.orders, engineOpts...),
		reader:  query.NewService(deps.products, deps.orders),
	}
}

// Run поднимает gRPC, REST и сервер метрик и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithFields(log.Fields{"component": "app", "service": version.Service})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Без брокера сервис работает, события просто не публикуются.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	defer closeKafka(producer, logger)

	svc := buildServices(cfg, deps, producer, metrics.NewEngineMetrics(), logger)
	logger.WithField("commit_mode", cfg.CommitMode).Info("order engine configured")

	grpcServer, healthServer := newGRPCServer(svc, logger)

	healthHandler := healthcheck.NewHandler(version.Service, version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if deps.redisClient != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NewRedisChecker(deps.redisClient))
	}

	apiHandler := httpx.NewHandler(svc.catalog, svc.engine, svc.reader, deps.limiter, logger.WithField("component", "inventory-http"))
	apiSrv := startHTTPServer(cfg.HTTPAddr, httpx.NewRouter(apiHandler, logger.WithField("component", "inventory-http"), healthHandler.Mount), logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer регистрирует InventoryService, health и reflection с prometheus-интерсепторами.
func newGRPCServer(svc services, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	service := grpcsvc.NewInventoryService(svc.catalog, svc.engine, svc.reader, logger.WithField("component", "inventory-grpc"))
	grpcsvc.RegisterInventoryServer(grpcServer, service)
	grpcMetrics.InitializeMetrics(grpcServer)

	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// startHTTPServer запускает REST API.
func startHTTPServer(addr string, handler http.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("REST API слушает %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server failed")
		}
	}()
	return srv
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы для Prometheus и оркестратора.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
