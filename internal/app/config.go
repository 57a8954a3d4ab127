package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CommitMode domain.CommitMode

	KafkaBrokers      []string
	KafkaClientID     string
	KafkaOrderTopic   string
	KafkaProductTopic string

	RedisAddr string
	// PublicRateLimit — запросов в минуту на IP для публичного QR-поиска; 0 отключает лимит.
	PublicRateLimit int

	LogLevel log.Level
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CommitMode:          domain.CommitModeBestEffort,
		KafkaClientID:       "inventory-service",
		KafkaOrderTopic:     kafka.TopicOrderEvents,
		KafkaProductTopic:   kafka.TopicProductEvents,
		PublicRateLimit:     10,
		LogLevel:            log.InfoLevel,
	}
}

// LoadConfig читает переменные IMS_* поверх значений по умолчанию.
// Файл .env в рабочем каталоге подхватывается, если существует; уже заданные переменные он не перетирает.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return configFromEnv(os.LookupEnv)
}

func configFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("IMS_GRPC_ADDR"); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := get("IMS_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get("IMS_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := get("IMS_STORAGE_DRIVER"); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := get("IMS_POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := get("IMS_POSTGRES_AUTO_MIGRATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("IMS_POSTGRES_AUTO_MIGRATE: %w", err)
		}
		cfg.PostgresAutoMigrate = b
	}
	if v, ok := get("IMS_COMMIT_MODE"); ok {
		mode, err := domain.ParseCommitMode(v)
		if err != nil {
			return Config{}, fmt.Errorf("IMS_COMMIT_MODE: %w", err)
		}
		cfg.CommitMode = mode
	}
	if v, ok := get("IMS_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := get("IMS_KAFKA_CLIENT_ID"); ok {
		cfg.KafkaClientID = v
	}
	if v, ok := get("IMS_KAFKA_TOPIC"); ok {
		cfg.KafkaOrderTopic = v
	}
	if v, ok := get("IMS_KAFKA_PRODUCT_TOPIC"); ok {
		cfg.KafkaProductTopic = v
	}
	if v, ok := get("IMS_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := get("IMS_PUBLIC_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("IMS_PUBLIC_RATE_LIMIT: %w", err)
		}
		cfg.PublicRateLimit = n
	}
	if v, ok := get("IMS_LOG_LEVEL"); ok {
		level, err := log.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("IMS_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("IMS_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if _, err := domain.ParseCommitMode(string(c.CommitMode)); err != nil {
		errs = append(errs, fmt.Errorf("commit mode: %w", err))
	}
	if c.PublicRateLimit < 0 {
		errs = append(errs, errors.New("public rate limit must be >= 0"))
	}
	if len(c.KafkaBrokers) > 0 && (c.KafkaOrderTopic == "" || c.KafkaProductTopic == "") {
		errs = append(errs, errors.New("kafka topics are required when brokers are set"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
