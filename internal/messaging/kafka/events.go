package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// События журнала заказов
	EventTypeOrderPlaced        EventType = "order.placed"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderRejected      EventType = "order.rejected"

	// События каталога
	EventTypeProductCreated EventType = "product.created"
	EventTypeProductUpdated EventType = "product.updated"
	EventTypeProductDeleted EventType = "product.deleted"
)

// Топики по умолчанию
const (
	TopicOrderEvents   = "ims.order.events"
	TopicProductEvents = "ims.product.events"
)

// OrderLine — позиция заказа в событии.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// OrderEvent — событие по зафиксированному заказу.
type OrderEvent struct {
	EventType   EventType   `json:"event_type"`
	OrderID     string      `json:"order_id"`
	BuyerID     string      `json:"buyer_id"`
	Status      string      `json:"status"`
	TotalAmount string      `json:"total_amount"`
	CommitMode  string      `json:"commit_mode,omitempty"`
	Lines       []OrderLine `json:"lines,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// RejectionEvent — отказ в оформлении заказа по остатку.
// Applied непуст только для best_effort: эти товары уже списаны.
type RejectionEvent struct {
	EventType EventType `json:"event_type"`
	BuyerID   string    `json:"buyer_id"`
	Reason    string    `json:"reason"`
	ProductID string    `json:"product_id,omitempty"`
	Requested int64     `json:"requested,omitempty"`
	Available int64     `json:"available"`
	Applied   []string  `json:"applied,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductEvent — изменение каталога.
type ProductEvent struct {
	EventType EventType `json:"event_type"`
	ProductID string    `json:"product_id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	Quantity  int64     `json:"quantity"`
	Price     string    `json:"price,omitempty"`
	QRCode    string    `json:"qr_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *OrderEvent) Type() EventType { return e.EventType }

func (e *RejectionEvent) Type() EventType { return e.EventType }

func (e *ProductEvent) Type() EventType { return e.EventType }

// NewOrderEvent строит событие из записи журнала.
func NewOrderEvent(eventType EventType, order domain.Order, mode domain.CommitMode) *OrderEvent {
	lines := make([]OrderLine, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		lines = append(lines, OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Subtotal:  item.Subtotal.String(),
		})
	}
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.String(),
		CommitMode:  string(mode),
		Lines:       lines,
		Timestamp:   time.Now().UTC(),
	}
}

// NewRejectionEvent строит событие отказа по причине reason.
func NewRejectionEvent(buyerID, reason string, err error) *RejectionEvent {
	event := &RejectionEvent{
		EventType: EventTypeOrderRejected,
		BuyerID:   buyerID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	var (
		insufficient *domain.InsufficientStockError
		conflict     *domain.StockConflictError
	)
	switch {
	case errors.As(err, &insufficient):
		event.ProductID, event.Requested, event.Available = insufficient.ProductID, insufficient.Requested, insufficient.Available
	case errors.As(err, &conflict):
		event.ProductID, event.Requested, event.Available = conflict.ProductID, conflict.Requested, conflict.Available
		event.Applied = conflict.Applied
	}
	return event
}

// NewProductEvent строит событие каталога.
func NewProductEvent(eventType EventType, product domain.Product, actorID string) *ProductEvent {
	event := &ProductEvent{
		EventType: eventType,
		ProductID: product.ID,
		ActorID:   actorID,
		Name:      product.Name,
		Quantity:  product.Quantity,
		QRCode:    product.QRCode,
		Timestamp: time.Now().UTC(),
	}
	if eventType != EventTypeProductDeleted {
		event.Price = product.Price.String()
	}
	return event
}
