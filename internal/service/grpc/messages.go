package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// Product — полная проекция товара.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	QRCode    string          `json:"qr_code"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	InStock   bool            `json:"in_stock"`
	LowStock  bool            `json:"low_stock"`
}

// PublicProduct — проекция для анонимного QR-поиска.
type PublicProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	QRCode   string          `json:"qr_code"`
	InStock  bool            `json:"in_stock"`
}

// OrderLine — строка запроса на покупку.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// LineItem — снимок позиции заказа.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order — зафиксированный заказ.
type Order struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyer_id"`
	LineItems   []LineItem      `json:"line_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PlaceOrderRequest struct {
	Lines []OrderLine `json:"lines"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ListProductsRequest struct{}

type ListProductsResponse struct {
	Products []*Product `json:"products"`
}

// LookupProductRequest — поиск по QR. Без принципала возвращается только Public.
type LookupProductRequest struct {
	QRCode string `json:"qr_code"`
}

type LookupProductResponse struct {
	Product *Product       `json:"product,omitempty"`
	Public  *PublicProduct `json:"public,omitempty"`
}

type GetProductRequest struct {
	ID string `json:"id"`
}

type CreateProductRequest struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// UpdateProductRequest — частичное обновление; отсутствующие поля не меняются.
type UpdateProductRequest struct {
	ID       string           `json:"id"`
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Quantity *int64           `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

type ProductResponse struct {
	Product *Product `json:"product"`
}

type DeleteProductRequest struct {
	ID string `json:"id"`
}

type DeleteProductResponse struct {
	Message string `json:"message"`
}

func productToMessage(p domain.Product) *Product {
	return &Product{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Quantity:  p.Quantity,
		Price:     p.Price,
		QRCode:    p.QRCode,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		InStock:   p.InStock(),
		LowStock:  p.LowStock(),
	}
}

func publicToMessage(p domain.PublicProduct) *PublicProduct {
	return &PublicProduct{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		Quantity: p.Quantity,
		QRCode:   p.QRCode,
		InStock:  p.InStock,
	}
}

func orderToMessage(o domain.Order) *Order {
	items := make([]LineItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		items = append(items, LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return &Order{
		ID:          o.ID,
		BuyerID:     o.BuyerID,
		LineItems:   items,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
}
