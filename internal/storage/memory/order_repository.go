package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

type orderRecord struct {
	order domain.Order
	// seq разрешает порядок заказов с одинаковым CreatedAt.
	seq uint64
}

// orderLedgerInMemory — append-only журнал заказов в памяти.
type orderLedgerInMemory struct {
	mu    sync.RWMutex
	items map[string]orderRecord
	seq   uint64
}

// NewOrderRepository возвращает in-memory журнал для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderLedgerInMemory{
		items: make(map[string]orderRecord),
	}
}

// Append сохраняет новый заказ, если ID ещё не занят.
func (r *orderLedgerInMemory) Append(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return &domain.ConflictError{Field: "order_id", Value: order.ID}
	}
	r.seq++
	r.items[order.ID] = orderRecord{order: cloneOrder(order), seq: r.seq}
	return nil
}

// Get возвращает заказ или NotFoundError.
func (r *orderLedgerInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	return cloneOrder(rec.order), nil
}

// GetForBuyer не отличает чужой заказ от несуществующего.
func (r *orderLedgerInMemory) GetForBuyer(_ context.Context, id, buyerID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok || rec.order.BuyerID != buyerID {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	return cloneOrder(rec.order), nil
}

func (r *orderLedgerInMemory) List(_ context.Context) ([]domain.Order, error) {
	return r.collect(func(domain.Order) bool { return true }), nil
}

func (r *orderLedgerInMemory) ListByBuyer(_ context.Context, buyerID string) ([]domain.Order, error) {
	return r.collect(func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

// UpdateStatus меняет статус; остальные поля заказа неизменны.
func (r *orderLedgerInMemory) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	rec.order.Status = status
	r.items[id] = rec
	return cloneOrder(rec.order), nil
}

// collect выбирает заказы по фильтру, новые первыми.
func (r *orderLedgerInMemory) collect(keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	records := make([]orderRecord, 0, len(r.items))
	for _, rec := range r.items {
		if keep(rec.order) {
			records = append(records, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].order.CreatedAt.Equal(records[j].order.CreatedAt) {
			return records[i].order.CreatedAt.After(records[j].order.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})

	result := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		result = append(result, cloneOrder(rec.order))
	}
	return result
}

// cloneOrder копирует срез позиций, чтобы вызывающий код не мог изменить журнал.
func cloneOrder(o domain.Order) domain.Order {
	o.LineItems = append([]domain.LineItem(nil), o.LineItems...)
	return o
}

var _ domain.OrderRepository = (*orderLedgerInMemory)(nil)
