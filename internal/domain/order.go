package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — допустимое значение, но движок его не выставляет: заказ фиксируется сразу.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted — заказ зафиксирован, остатки списаны.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён владельцем; остатки не возвращаются.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus разбирает статус из внешнего представления.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", InvalidField("status", ErrStatusInvalid)
	}
	return s, nil
}

// Valid сообщает, входит ли статус в допустимое множество.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// LineItem — снимок позиции заказа на момент покупки.
// Имя и цена копируются из товара и не меняются при последующем редактировании каталога.
type LineItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
	Subtotal  decimal.Decimal
}

// NewLineItem собирает позицию из товара и считает subtotal.
func NewLineItem(p Product, qty int64) LineItem {
	return LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  qty,
		Subtotal:  p.Price.Mul(decimal.NewFromInt(qty)),
	}
}

// Order — зафиксированная покупка. После создания меняется только Status.
type Order struct {
	ID          string
	BuyerID     string
	LineItems   []LineItem
	TotalAmount decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
}

// OrderLineRequest — одна строка запроса на покупку.
type OrderLineRequest struct {
	ProductID string
	Quantity  int64
}

// SumLineItems возвращает точную сумму subtotal.
func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if len(o.LineItems) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	for _, item := range o.LineItems {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
		if !item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))) {
			errs = append(errs, ErrSubtotalMismatch)
		}
	}
	if !SumLineItems(o.LineItems).Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// StockDelta — списание (или возврат) количества по одному товару.
type StockDelta struct {
	ProductID string
	Quantity  int64
}

// AggregateDeltas сворачивает позиции в дельты по товарам, сохраняя порядок первого появления.
func AggregateDeltas(items []LineItem) ([]StockDelta, error) {
	deltas := make([]StockDelta, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, StockDelta{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return MergeDeltas(deltas)
}

// MergeDeltas складывает дельты одного товара.
// Сумма, не помещающаяся в int64, отклоняется как ValidationError.
func MergeDeltas(deltas []StockDelta) ([]StockDelta, error) {
	index := make(map[string]int, len(deltas))
	merged := make([]StockDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Quantity <= 0 {
			return nil, InvalidField("quantity", ErrItemQtyInvalid)
		}
		if i, ok := index[d.ProductID]; ok {
			if merged[i].Quantity > math.MaxInt64-d.Quantity {
				return nil, InvalidField("quantity", ErrQuantityOverflow)
			}
			merged[i].Quantity += d.Quantity
			continue
		}
		index[d.ProductID] = len(merged)
		merged = append(merged, d)
	}
	return merged, nil
}
