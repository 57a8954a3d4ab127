package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
)

// QRPrefix — префикс QR-токена товара.
const QRPrefix = "INV-"

// NewQRCode генерирует токен INV- + 12 hex-символов в верхнем регистре.
func NewQRCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return QRPrefix + strings.ToUpper(raw[:12])
}

// CreateInput — поля нового товара.
type CreateInput struct {
	Name     string
	Category string
	Quantity int64
	Price    decimal.Decimal
}

// Options задаёт зависимости каталога.
type Options struct {
	Logger    *log.Entry
	Publisher domain.EventPublisher
	Topic     string
	Metrics   *metrics.EngineMetrics
	Clock     func() time.Time
	NewID     func() string
	NewQRCode func() string
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса каталога.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithEventPublisher включает публикацию product.* событий в topic.
func WithEventPublisher(publisher domain.EventPublisher, topic string) Option {
	return func(opts *Options) {
		opts.Publisher = publisher
		opts.Topic = topic
	}
}

// WithMetrics подключает prometheus-метрики мутаций каталога.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// WithIDGenerator подменяет генератор ID товаров.
func WithIDGenerator(gen func() string) Option {
	return func(opts *Options) { opts.NewID = gen }
}

// WithQRGenerator подменяет генератор QR-токенов.
func WithQRGenerator(gen func() string) Option {
	return func(opts *Options) { opts.NewQRCode = gen }
}

// Service — операции каталога поверх ProductRepository.
type Service struct {
	products  domain.ProductRepository
	publisher domain.EventPublisher
	topic     string
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
	newQR     func() string
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, options ...Option) *Service {
	opts := Options{
		Topic:     kafka.TopicProductEvents,
		Clock:     func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
		NewQRCode: NewQRCode,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	if opts.Topic == "" {
		opts.Topic = kafka.TopicProductEvents
	}

	return &Service{
		products:  products,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       opts.Clock,
		newID:     opts.NewID,
		newQR:     opts.NewQRCode,
	}
}

// Create добавляет товар. Коллизия qr_code возвращается как ConflictError без повторной попытки.
func (s *Service) Create(ctx context.Context, createdBy string, in CreateInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Category:  strings.TrimSpace(in.Category),
		Quantity:  in.Quantity,
		Price:     in.Price,
		QRCode:    s.newQR(),
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, domain.Invalid(errs...)
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"qr_code":    product.QRCode,
		"actor_id":   createdBy,
	}).Info("product created")
	s.recordMutation("create")
	s.publish(kafka.EventTypeProductCreated, product, createdBy)
	return product, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

// LookupPublic — QR-поиск для неаутентифицированного клиента.
func (s *Service) LookupPublic(ctx context.Context, qrCode string) (domain.PublicProduct, error) {
	product, err := s.products.GetByQR(ctx, qrCode)
	if err != nil {
		return domain.PublicProduct{}, err
	}
	return product.Public(), nil
}

// LookupFull — QR-поиск с полной проекцией.
func (s *Service) LookupFull(ctx context.Context, qrCode string) (domain.Product, error) {
	return s.products.GetByQR(ctx, qrCode)
}

// List возвращает каталог, новые товары первыми.
func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

// Update применяет частичное обновление; нужен хотя бы один параметр.
func (s *Service) Update(ctx context.Context, actorID, id string, patch domain.ProductPatch) (domain.Product, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.Update(ctx, id, patch, s.now())
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{"product_id": id, "actor_id": actorID}).Info("product updated")
	s.recordMutation("update")
	s.publish(kafka.EventTypeProductUpdated, product, actorID)
	return product, nil
}

// Delete удаляет товар. Заказы с этим товаром не затрагиваются.
func (s *Service) Delete(ctx context.Context, actorID, id string) (bool, error) {
	deleted, err := s.products.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	s.logger.WithFields(log.Fields{"product_id": id, "actor_id": actorID}).Info("product deleted")
	s.recordMutation("delete")
	s.publish(kafka.EventTypeProductDeleted, domain.Product{ID: id}, actorID)
	return true, nil
}

func (s *Service) recordMutation(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCatalogMutation(operation)
	}
}

// publish не влияет на результат операции: ошибка брокера только логируется.
func (s *Service) publish(eventType kafka.EventType, product domain.Product, actorID string) {
	if s.publisher == nil {
		return
	}
	event := kafka.NewProductEvent(eventType, product, actorID)
	if err := s.publisher.PublishEvent(s.topic, product.ID, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event_type": eventType,
		}).Warn("failed to publish catalog event")
	}
}
