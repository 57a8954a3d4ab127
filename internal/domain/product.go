package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold — остаток ниже этого значения помечается как low_stock.
const LowStockThreshold = 10

// PriceScale — максимальное число знаков после запятой в цене и суммах.
const PriceScale = 4

// MaxAmount — верхняя граница (не включительно) цены, subtotal и суммы заказа.
// Совпадает с диапазоном NUMERIC(18, 4) в хранилище.
var MaxAmount = decimal.New(1, 18-PriceScale)

// CheckAmount проверяет, что сумма помещается в диапазон MaxAmount без округления.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(PriceScale)) {
		return ErrPriceScale
	}
	if amount.Abs().GreaterThanOrEqual(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

func priceErrors(price decimal.Decimal) []error {
	if price.IsNegative() {
		return []error{ErrPriceNegative}
	}
	if err := CheckAmount(price); err != nil {
		return []error{err}
	}
	return nil
}

// Product — запись каталога. Quantity — единственный авторитетный остаток.
type Product struct {
	ID       string
	Name     string
	Category string
	Quantity int64
	Price    decimal.Decimal
	// QRCode — токен вида INV-XXXXXXXXXXXX, уникален и не меняется.
	QRCode    string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InStock — есть ли хотя бы одна единица.
func (p Product) InStock() bool { return p.Quantity > 0 }

// LowStock — остаток ниже порога.
func (p Product) LowStock() bool { return p.Quantity < LowStockThreshold }

// Validate проверяет поля товара перед записью.
func (p *Product) Validate() []error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if strings.TrimSpace(p.Category) == "" {
		errs = append(errs, ErrProductCategoryRequired)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}
	errs = append(errs, priceErrors(p.Price)...)
	if p.CreatedBy == "" {
		errs = append(errs, ErrCreatedByRequired)
	}
	return errs
}

// ProductPatch — частичное обновление товара; nil-поля не меняются.
type ProductPatch struct {
	Name     *string
	Category *string
	Quantity *int64
	Price    *decimal.Decimal
}

// IsEmpty — ни одно поле не задано.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.Quantity == nil && p.Price == nil
}

// Normalize обрезает пробелы в строковых полях и проверяет значения.
func (p ProductPatch) Normalize() (ProductPatch, error) {
	if p.IsEmpty() {
		return p, Invalid(ErrNoFieldsToUpdate)
	}
	var errs []error
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			errs = append(errs, ErrProductNameRequired)
		}
		p.Name = &name
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		if category == "" {
			errs = append(errs, ErrProductCategoryRequired)
		}
		p.Category = &category
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}
	if p.Price != nil {
		errs = append(errs, priceErrors(*p.Price)...)
	}
	if len(errs) > 0 {
		return p, Invalid(errs...)
	}
	return p, nil
}

// Apply применяет патч к копии товара.
func (p ProductPatch) Apply(product Product, at time.Time) Product {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Quantity != nil {
		product.Quantity = *p.Quantity
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	product.UpdatedAt = at
	return product
}

// PublicProduct — проекция для неаутентифицированного QR-поиска.
type PublicProduct struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int64
	QRCode   string
	InStock  bool
}

// Public строит публичную проекцию товара.
func (p Product) Public() PublicProduct {
	return PublicProduct{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		Quantity: p.Quantity,
		QRCode:   p.QRCode,
		InStock:  p.InStock(),
	}
}
