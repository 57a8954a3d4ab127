package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const stripeCount = 64

type productRecord struct {
	product domain.Product
	seq     uint64
}

// productRepositoryInMemory хранит каталог в памяти.
//
// mu защищает структуру (map и индекс qr), полосы stripes защищают поля записей.
// Порядок захвата всегда mu -> stripe; несколько полос берутся по возрастанию индекса.
type productRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]*productRecord
	byQR    map[string]string
	seq     uint64
	stripes [stripeCount]sync.Mutex
}

// NewProductRepository возвращает in-memory каталог.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]*productRecord),
		byQR:  make(map[string]string),
	}
}

func stripeOf(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % stripeCount)
}

func (r *productRepositoryInMemory) lockStripe(id string) func() {
	m := &r.stripes[stripeOf(id)]
	m.Lock()
	return m.Unlock
}

// Create сохраняет товар; повтор ID или qr_code возвращает ConflictError.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return &domain.ConflictError{Field: "id", Value: product.ID}
	}
	if _, exists := r.byQR[product.QRCode]; exists {
		return &domain.ConflictError{Field: "qr_code", Value: product.QRCode}
	}
	r.seq++
	r.items[product.ID] = &productRecord{product: product, seq: r.seq}
	r.byQR[product.QRCode] = product.ID
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	unlock := r.lockStripe(id)
	defer unlock()
	return rec.product, nil
}

func (r *productRepositoryInMemory) GetByQR(ctx context.Context, qrCode string) (domain.Product, error) {
	r.mu.RLock()
	id, ok := r.byQR[qrCode]
	r.mu.RUnlock()
	if !ok {
		return domain.Product{}, domain.ProductNotFound(qrCode)
	}
	product, err := r.Get(ctx, id)
	if err != nil {
		// Товар удалён между двумя чтениями.
		return domain.Product{}, domain.ProductNotFound(qrCode)
	}
	return product, nil
}

// List возвращает снимок каталога, новые товары первыми.
func (r *productRepositoryInMemory) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	records := make([]productRecord, 0, len(r.items))
	for id, rec := range r.items {
		unlock := r.lockStripe(id)
		records = append(records, *rec)
		unlock()
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].product.CreatedAt.Equal(records[j].product.CreatedAt) {
			return records[i].product.CreatedAt.After(records[j].product.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})

	result := make([]domain.Product, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.product)
	}
	return result, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, id string, patch domain.ProductPatch, at time.Time) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	unlock := r.lockStripe(id)
	defer unlock()
	rec.product = patch.Apply(rec.product, at)
	return rec.product, nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok {
		return false, nil
	}
	delete(r.byQR, rec.product.QRCode)
	delete(r.items, id)
	return true, nil
}

// TryDecrement — проверка и списание под одной полосой, поэтому операция линеаризуема по товару.
func (r *productRepositoryInMemory) TryDecrement(_ context.Context, id string, amount int64, at time.Time) (bool, error) {
	if amount <= 0 {
		return false, domain.InvalidField("quantity", domain.ErrItemQtyInvalid)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return false, nil
	}
	unlock := r.lockStripe(id)
	defer unlock()

	if rec.product.Quantity < amount {
		return false, nil
	}
	rec.product.Quantity -= amount
	rec.product.UpdatedAt = at
	return true, nil
}

// DecrementAll захватывает полосы всех товаров по возрастанию и списывает всё или ничего.
func (r *productRepositoryInMemory) DecrementAll(_ context.Context, deltas []domain.StockDelta, at time.Time) error {
	deltas, err := domain.MergeDeltas(deltas)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defer r.lockStripesFor(deltas)()

	for _, d := range deltas {
		rec, ok := r.items[d.ProductID]
		if !ok {
			return &domain.StockConflictError{ProductID: d.ProductID, Requested: d.Quantity}
		}
		if rec.product.Quantity < d.Quantity {
			return &domain.StockConflictError{
				ProductID: d.ProductID,
				Name:      rec.product.Name,
				Requested: d.Quantity,
				Available: rec.product.Quantity,
			}
		}
	}
	for _, d := range deltas {
		rec := r.items[d.ProductID]
		rec.product.Quantity -= d.Quantity
		rec.product.UpdatedAt = at
	}
	return nil
}

// Restock возвращает количество; удалённые товары пропускаются.
func (r *productRepositoryInMemory) Restock(_ context.Context, deltas []domain.StockDelta, at time.Time) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defer r.lockStripesFor(deltas)()

	for _, d := range deltas {
		rec, ok := r.items[d.ProductID]
		if !ok {
			continue
		}
		rec.product.Quantity += d.Quantity
		rec.product.UpdatedAt = at
	}
	return nil
}

func (r *productRepositoryInMemory) lockStripesFor(deltas []domain.StockDelta) func() {
	seen := make(map[int]struct{}, len(deltas))
	idx := make([]int, 0, len(deltas))
	for _, d := range deltas {
		s := stripeOf(d.ProductID)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)
	for _, s := range idx {
		r.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			r.stripes[idx[i]].Unlock()
		}
	}
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
