package domain

import (
	"context"
	"time"
)

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	// Create сохраняет новый товар. Повтор qr_code возвращает *ConflictError.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар по ID или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetByQR ищет товар по QR-токену.
	GetByQR(ctx context.Context, qrCode string) (Product, error)
	// List возвращает все товары, новые первыми.
	List(ctx context.Context) ([]Product, error)
	// Update применяет патч и возвращает обновлённую запись.
	Update(ctx context.Context, id string, patch ProductPatch, at time.Time) (Product, error)
	// Delete удаляет товар; false, если записи не было.
	Delete(ctx context.Context, id string) (bool, error)
	// TryDecrement атомарно уменьшает остаток, только если его хватает.
	// false без ошибки означает, что остатка не хватило (или товара уже нет).
	TryDecrement(ctx context.Context, id string, amount int64, at time.Time) (bool, error)
	// DecrementAll списывает все дельты или ни одной; при нехватке возвращает *StockConflictError.
	DecrementAll(ctx context.Context, deltas []StockDelta, at time.Time) error
	// Restock возвращает количество на склад (компенсация DecrementAll).
	Restock(ctx context.Context, deltas []StockDelta, at time.Time) error
}

// OrderRepository описывает журнал зафиксированных заказов.
type OrderRepository interface {
	// Append сохраняет новый заказ. Повтор ID возвращает *ConflictError.
	Append(ctx context.Context, order Order) error
	// Get возвращает заказ по ID или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForBuyer возвращает заказ, только если он принадлежит покупателю.
	GetForBuyer(ctx context.Context, id, buyerID string) (Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context) ([]Order, error)
	// ListByBuyer возвращает заказы покупателя, новые первыми.
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	// UpdateStatus меняет только статус заказа.
	UpdateStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
}

// EventPublisher отправляет доменные события во внешний брокер.
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}
