package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
)

// Options задаёт параметры движка заказов.
type Options struct {
	Logger     *log.Entry
	CommitMode domain.CommitMode
	Publisher  domain.EventPublisher
	Topic      string
	Metrics    *metrics.EngineMetrics
	Clock      func() time.Time
	NewID      func() string
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithCommitMode выбирает протокол списания; по умолчанию best_effort.
func WithCommitMode(mode domain.CommitMode) Option {
	return func(opts *Options) { opts.CommitMode = mode }
}

// WithEventPublisher включает публикацию order.* событий.
func WithEventPublisher(publisher domain.EventPublisher, topic string) Option {
	return func(opts *Options) {
		opts.Publisher = publisher
		opts.Topic = topic
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) { opts.Clock = clock }
}

// WithIDGenerator подменяет генератор ID заказов.
func WithIDGenerator(gen func() string) Option {
	return func(opts *Options) { opts.NewID = gen }
}

// Engine проверяет остатки, списывает их и фиксирует заказ в журнале.
// Движок не держит блокировок между вызовами: линеаризуемость списания обеспечивает каталог.
type Engine struct {
	products  domain.ProductRepository
	orders    domain.OrderRepository
	mode      domain.CommitMode
	publisher domain.EventPublisher
	topic     string
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// NewEngine создаёт движок поверх каталога и журнала заказов.
func NewEngine(products domain.ProductRepository, orders domain.OrderRepository, options ...Option) *Engine {
	opts := Options{
		CommitMode: domain.CommitModeBestEffort,
		Topic:      kafka.TopicOrderEvents,
		Clock:      func() time.Time { return time.Now().UTC() },
		NewID:      uuid.NewString,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-engine")
	}
	if opts.CommitMode == "" {
		opts.CommitMode = domain.CommitModeBestEffort
	}
	if opts.Topic == "" {
		opts.Topic = kafka.TopicOrderEvents
	}

	return &Engine{
		products:  products,
		orders:    orders,
		mode:      opts.CommitMode,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		metrics:   opts.Metrics,
		logger:    logger.WithField("commit_mode", string(opts.CommitMode)),
		now:       opts.Clock,
		newID:     opts.NewID,
	}
}

// Mode возвращает активный протокол списания.
func (e *Engine) Mode() domain.CommitMode { return e.mode }

// PlaceOrder оформляет покупку. Ничего не повторяется внутри: повторный идентичный запрос создаёт второй заказ.
func (e *Engine) PlaceOrder(ctx context.Context, buyerID string, lines []domain.OrderLineRequest) (domain.Order, error) {
	if e.metrics != nil {
		e.metrics.OrderStarted()
		defer e.metrics.OrderFinished()
	}

	order, err := e.placeOrder(ctx, buyerID, lines)
	if err != nil {
		e.reject(buyerID, err)
		return domain.Order{}, err
	}
	return order, nil
}

func (e *Engine) placeOrder(ctx context.Context, buyerID string, lines []domain.OrderLineRequest) (domain.Order, error) {
	items, err := e.priceLines(ctx, buyerID, lines)
	if err != nil {
		return domain.Order{}, err
	}
	deltas, err := domain.AggregateDeltas(items)
	if err != nil {
		return domain.Order{}, err
	}

	start := time.Now()
	switch e.mode {
	case domain.CommitModeAllOrNothing:
		err = e.commitAll(ctx, items, deltas)
	default:
		err = e.commitEach(ctx, buyerID, items)
	}
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          e.newID(),
		BuyerID:     buyerID,
		LineItems:   items,
		TotalAmount: domain.SumLineItems(items),
		Status:      domain.OrderStatusCompleted,
		CreatedAt:   e.now(),
	}
	if err := e.orders.Append(ctx, order); err != nil {
		e.compensate(ctx, order, deltas, err)
		return domain.Order{}, fmt.Errorf("append order: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordOrderPlaced(string(e.mode))
		e.metrics.RecordCommitDuration(string(e.mode), time.Since(start))
	}
	e.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"buyer_id":     buyerID,
		"lines":        len(items),
		"total_amount": order.TotalAmount.String(),
	}).Info("order placed")
	e.publish(order.ID, kafka.NewOrderEvent(kafka.EventTypeOrderPlaced, order, e.mode))

	return order, nil
}

// priceLines проверяет запрос построчно и строит снимки позиций.
// Порядок проверок строки: product_id, существование товара, количество, остаток.
// Сумма заказа проверяется до списания, чтобы журнал гарантированно принял заказ.
func (e *Engine) priceLines(ctx context.Context, buyerID string, lines []domain.OrderLineRequest) ([]domain.LineItem, error) {
	if buyerID == "" {
		return nil, domain.InvalidField("buyer_id", domain.ErrBuyerRequired)
	}
	if len(lines) == 0 {
		return nil, domain.InvalidField("items", domain.ErrItemsRequired)
	}

	items := make([]domain.LineItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, domain.InvalidField("product_id", domain.ErrProductIDRequired)
		}
		product, err := e.products.Get(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
		}
		if line.Quantity <= 0 {
			return nil, domain.InvalidField("quantity", domain.ErrItemQtyInvalid)
		}
		if product.Quantity < line.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.Quantity,
				Requested: line.Quantity,
			}
		}
		item := domain.NewLineItem(product, line.Quantity)
		total = total.Add(item.Subtotal)
		if err := domain.CheckAmount(total); err != nil {
			return nil, domain.InvalidField("total_amount", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// commitEach — best_effort: условное списание по строкам в порядке запроса.
// Уже применённые списания при конфликте остаются в силе.
func (e *Engine) commitEach(ctx context.Context, buyerID string, items []domain.LineItem) error {
	applied := make([]string, 0, len(items))
	for _, item := range items {
		ok, err := e.products.TryDecrement(ctx, item.ProductID, item.Quantity, e.now())
		if err != nil {
			return fmt.Errorf("decrement product %s: %w", item.ProductID, err)
		}
		if e.metrics != nil {
			e.metrics.RecordDecrement(ok)
		}
		if ok {
			applied = append(applied, item.ProductID)
			continue
		}

		conflict := &domain.StockConflictError{
			ProductID: item.ProductID,
			Name:      item.Name,
			Requested: item.Quantity,
			Available: e.observeAvailable(ctx, item.ProductID),
			Applied:   applied,
		}
		if len(applied) > 0 {
			if e.metrics != nil {
				e.metrics.RecordPartialCommit()
			}
			e.logger.WithFields(log.Fields{
				"buyer_id":   buyerID,
				"product_id": item.ProductID,
				"applied":    applied,
			}).Warn("partial stock decrement left in place after conflict")
		}
		return conflict
	}
	return nil
}

// commitAll — all_or_nothing: каталог списывает все дельты атомарно.
func (e *Engine) commitAll(ctx context.Context, items []domain.LineItem, deltas []domain.StockDelta) error {
	err := e.products.DecrementAll(ctx, deltas, e.now())
	if e.metrics != nil {
		for range deltas {
			e.metrics.RecordDecrement(err == nil)
		}
	}
	if err == nil {
		return nil
	}

	var conflict *domain.StockConflictError
	if errors.As(err, &conflict) {
		if conflict.Name == "" {
			for _, item := range items {
				if item.ProductID == conflict.ProductID {
					conflict.Name = item.Name
					break
				}
			}
		}
		return conflict
	}
	return fmt.Errorf("decrement stock: %w", err)
}

// observeAvailable перечитывает остаток после проигранной гонки; -1, если прочитать не удалось.
func (e *Engine) observeAvailable(ctx context.Context, productID string) int64 {
	product, err := e.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0
		}
		e.logger.WithError(err).WithField("product_id", productID).Warn("failed to re-read stock after conflict")
		return -1
	}
	return product.Quantity
}

// compensate возвращает остатки, если журнал не принял заказ в режиме all_or_nothing.
// В best_effort списание остаётся, как и при конфликте.
func (e *Engine) compensate(ctx context.Context, order domain.Order, deltas []domain.StockDelta, cause error) {
	entry := e.logger.WithError(cause).WithFields(log.Fields{
		"order_id": order.ID,
		"buyer_id": order.BuyerID,
	})
	if e.mode != domain.CommitModeAllOrNothing {
		entry.Error("failed to append order, stock stays decremented")
		return
	}

	if err := e.products.Restock(context.WithoutCancel(ctx), deltas, e.now()); err != nil {
		entry.WithField("restock_error", err.Error()).Error("failed to restock after ledger append failure")
		return
	}
	entry.Error("failed to append order, stock restored")
}

// UpdateStatus меняет статус заказа. Отмена не возвращает остатки.
func (e *Engine) UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := e.orders.UpdateStatus(ctx, orderID, next)
	if err != nil {
		return domain.Order{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordStatusUpdate(string(next))
	}
	e.logger.WithFields(log.Fields{"order_id": orderID, "status": next}).Info("order status updated")
	e.publish(order.ID, kafka.NewOrderEvent(kafka.EventTypeOrderStatusChanged, order, ""))
	return order, nil
}

func (e *Engine) reject(buyerID string, err error) {
	reason := RejectionReason(err)
	if e.metrics != nil {
		e.metrics.RecordRejection(reason)
	}

	entry := e.logger.WithError(err).WithFields(log.Fields{"buyer_id": buyerID, "reason": reason})
	switch reason {
	case metrics.ReasonInternal:
		entry.Error("order placement failed")
		return
	case metrics.ReasonInsufficientStock, metrics.ReasonStockConflict:
		entry.Warn("order rejected")
		e.publish(buyerID, kafka.NewRejectionEvent(buyerID, reason, err))
	default:
		entry.Info("order rejected")
	}
}

// RejectionReason классифицирует ошибку оформления заказа.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return metrics.ReasonValidation
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ReasonNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonInsufficientStock
	case errors.Is(err, domain.ErrStockConflict):
		return metrics.ReasonStockConflict
	default:
		return metrics.ReasonInternal
	}
}

func (e *Engine) publish(key string, event interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishEvent(e.topic, key, event); err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("failed to publish order event")
	}
}
