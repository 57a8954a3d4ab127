package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const orderColumns = `id, buyer_id, line_items, total_amount, status, created_at`

// lineItemDoc — представление позиции внутри JSONB-колонки line_items.
type lineItemDoc struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию журнала заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func encodeLineItems(items []domain.LineItem) ([]byte, error) {
	docs := make([]lineItemDoc, 0, len(items))
	for _, item := range items {
		docs = append(docs, lineItemDoc(item))
	}
	return json.Marshal(docs)
}

func decodeLineItems(raw []byte) ([]domain.LineItem, error) {
	var docs []lineItemDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	items := make([]domain.LineItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.LineItem(doc))
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		raw    []byte
		status string
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &raw, &o.TotalAmount, &status, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	items, err := decodeLineItems(raw)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode line items of order %s: %w", o.ID, err)
	}
	o.LineItems = items
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func (r *orderRepository) Append(ctx context.Context, order domain.Order) error {
	raw, err := encodeLineItems(order.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
	`, order.ID, order.BuyerID, string(raw), order.TotalAmount, string(order.Status), order.CreatedAt)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return &domain.ConflictError{Field: "order_id", Value: order.ID, Err: err}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.one(r.store.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), id)
}

// GetForBuyer фильтрует по buyer_id в запросе: чужой заказ неотличим от отсутствующего.
func (r *orderRepository) GetForBuyer(ctx context.Context, id, buyerID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.one(r.store.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND buyer_id = $2`, id, buyerID), id)
}

func (r *orderRepository) one(row *sql.Row, id string) (domain.Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.OrderNotFound(id)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, seq DESC`)
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return r.many(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, seq DESC`, buyerID)
}

func (r *orderRepository) many(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

// UpdateStatus — единственная мутация журнала после вставки.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.one(r.store.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns, id, string(status)), id)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
