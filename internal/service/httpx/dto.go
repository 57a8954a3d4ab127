package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

type itemDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	QRCode    string          `json:"qrCode"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	LowStock  bool            `json:"lowStock"`
}

type publicItemDTO struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	QRCode   string          `json:"qrCode"`
	InStock  bool            `json:"inStock"`
}

type orderItemDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderDTO struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyerId"`
	Items       []orderItemDTO  `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// stockErrorDTO — тело 409 при нехватке остатка или проигранной гонке.
type stockErrorDTO struct {
	Error     string   `json:"error"`
	ProductID string   `json:"productId"`
	Available int64    `json:"available"`
	Requested int64    `json:"requested"`
	Applied   []string `json:"applied"`
}

type createItemRequest struct {
	Name     *string          `json:"name"`
	Category *string          `json:"category"`
	Quantity *int64           `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

type updateItemRequest struct {
	Name     *string          `json:"name"`
	Category *string          `json:"category"`
	Quantity *int64           `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type placeOrderRequest struct {
	Items []orderLineRequest `json:"items"`
}

type updateStatusRequest struct {
	Status *string `json:"status"`
}

func toItemDTO(p domain.Product) itemDTO {
	return itemDTO{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Quantity:  p.Quantity,
		Price:     p.Price,
		QRCode:    p.QRCode,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		LowStock:  p.LowStock(),
	}
}

func toPublicItemDTO(p domain.PublicProduct) publicItemDTO {
	return publicItemDTO{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		Quantity: p.Quantity,
		QRCode:   p.QRCode,
		InStock:  p.InStock,
	}
}

func toOrderDTO(o domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		items = append(items, orderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return orderDTO{
		ID:          o.ID,
		BuyerID:     o.BuyerID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
}
