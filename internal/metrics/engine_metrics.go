package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа (метка reason).
const (
	ReasonValidation        = "validation"
	ReasonNotFound          = "not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonStockConflict     = "stock_conflict"
	ReasonInternal          = "internal"
)

// EngineMetrics — метрики движка заказов и каталога.
type EngineMetrics struct {
	ordersPlaced     *prometheus.CounterVec
	orderRejections  *prometheus.CounterVec
	stockDecrements  *prometheus.CounterVec
	partialCommits   prometheus.Counter
	commitDuration   *prometheus.HistogramVec
	statusUpdates    *prometheus.CounterVec
	catalogMutations *prometheus.CounterVec

	ordersInFlight prometheus.Gauge
}

// NewEngineMetrics регистрирует метрики в DefaultRegisterer.
func NewEngineMetrics() *EngineMetrics {
	return NewEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewEngineMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		ordersPlaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_orders_placed_total",
			Help: "Total number of committed orders by commit mode",
		}, []string{"mode"}),
		orderRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_order_rejections_total",
			Help: "Total number of rejected purchase requests by reason",
		}, []string{"reason"}),
		stockDecrements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_stock_decrements_total",
			Help: "Conditional stock decrements by result",
		}, []string{"result"}),
		partialCommits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_partial_commits_total",
			Help: "Best-effort purchases that left earlier lines decremented after a stock conflict",
		}),
		commitDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ims_order_commit_duration_seconds",
			Help:    "Duration of the stock commit and ledger append",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"mode"}),
		statusUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_order_status_updates_total",
			Help: "Order status updates by target status",
		}, []string{"status"}),
		catalogMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_catalog_mutations_total",
			Help: "Catalog mutations by operation",
		}, []string{"operation"}),
		ordersInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ims_orders_in_flight",
			Help: "Purchase requests currently being processed",
		}),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register[prometheus.Counter](registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register[prometheus.Gauge](registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// RecordOrderPlaced учитывает зафиксированный заказ.
func (m *EngineMetrics) RecordOrderPlaced(mode string) {
	m.ordersPlaced.WithLabelValues(mode).Inc()
}

// RecordRejection учитывает отказ по причине reason.
func (m *EngineMetrics) RecordRejection(reason string) {
	m.orderRejections.WithLabelValues(reason).Inc()
}

// RecordDecrement учитывает результат условного списания.
func (m *EngineMetrics) RecordDecrement(applied bool) {
	result := "applied"
	if !applied {
		result = "rejected"
	}
	m.stockDecrements.WithLabelValues(result).Inc()
}

// RecordPartialCommit учитывает best-effort заказ, оставивший частичное списание.
func (m *EngineMetrics) RecordPartialCommit() {
	m.partialCommits.Inc()
}

// RecordCommitDuration записывает длительность фиксации.
func (m *EngineMetrics) RecordCommitDuration(mode string, d time.Duration) {
	m.commitDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *EngineMetrics) RecordStatusUpdate(status string) {
	m.statusUpdates.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) RecordCatalogMutation(operation string) {
	m.catalogMutations.WithLabelValues(operation).Inc()
}

// OrderStarted и OrderFinished ведут gauge запросов в обработке.
func (m *EngineMetrics) OrderStarted() { m.ordersInFlight.Inc() }

func (m *EngineMetrics) OrderFinished() { m.ordersInFlight.Dec() }
