package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — базовая ошибка некорректного входа; любой *ValidationError удовлетворяет errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock — на момент проверки остатка меньше, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict — условное списание не прошло: остаток изменился конкурентной покупкой.
	ErrStockConflict = errors.New("stock conflict")
	// ErrConflict — нарушение уникальности (например, повтор qr_code).
	ErrConflict = errors.New("conflict")

	// ErrNotFound совпадает с любым *NotFoundError.
	ErrNotFound = &NotFoundError{}
	// ErrProductNotFound совпадает с *NotFoundError для товаров.
	ErrProductNotFound = &NotFoundError{Resource: ResourceProduct}
	// ErrOrderNotFound совпадает с *NotFoundError для заказов.
	ErrOrderNotFound = &NotFoundError{Resource: ResourceOrder}
)

var (
	// Ошибка пустого названия товара.
	ErrProductNameRequired = errors.New("name cannot be empty")
	// Ошибка пустой категории товара.
	ErrProductCategoryRequired = errors.New("category cannot be empty")
	// Ошибка отрицательного остатка.
	ErrQuantityNegative = errors.New("quantity cannot be negative")
	// Ошибка отрицательной цены.
	ErrPriceNegative = errors.New("price cannot be negative")
	// Ошибка цены с более чем четырьмя знаками после запятой.
	ErrPriceScale = errors.New("price must have at most 4 decimal places")
	// Ошибка суммы вне поддерживаемого диапазона.
	ErrAmountTooLarge = errors.New("amount must be less than 100000000000000")
	// Ошибка отсутствующего автора товара.
	ErrCreatedByRequired = errors.New("created_by is required")
	// Ошибка пустого патча при обновлении товара.
	ErrNoFieldsToUpdate = errors.New("no fields to update")
	// Ошибка отсутствующего покупателя.
	ErrBuyerRequired = errors.New("buyer_id is required")
	// Ошибка пустого заказа.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего product_id в позиции.
	ErrProductIDRequired = errors.New("each item must have a product_id")
	// Ошибка некорректного количества в позиции (<= 0).
	ErrItemQtyInvalid = errors.New("quantity must be greater than 0")
	// Ошибка переполнения суммарного количества одного товара в заказе.
	ErrQuantityOverflow = errors.New("total quantity for a product exceeds the supported range")
	// Ошибка расхождения subtotal с unit_price * quantity.
	ErrSubtotalMismatch = errors.New("line subtotal does not match unit_price * quantity")
	// Ошибка расхождения суммы заказа с суммой позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("invalid status, must be: pending, completed, or cancelled")
	// Ошибка неизвестной роли.
	ErrRoleInvalid = errors.New("role must be owner or buyer")
	// Ошибка неизвестного режима фиксации.
	ErrCommitModeInvalid = errors.New("commit mode must be best_effort or all_or_nothing")
)

// Типы ресурсов для NotFoundError.
const (
	ResourceProduct = "product"
	ResourceOrder   = "order"
)

// ValidationError описывает некорректный входной запрос.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid собирает ValidationError без привязки к полю.
func Invalid(errs ...error) error {
	return &ValidationError{Err: errors.Join(errs...)}
}

// InvalidField собирает ValidationError для конкретного поля.
func InvalidField(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError сообщает, что запись не найдена.
// Шаблонные значения (ErrNotFound и т.п.) с пустыми полями совпадают с любым ID.
type NotFoundError struct {
	Resource string
	ID       string
}

// ProductNotFound возвращает ошибку отсутствующего товара.
func ProductNotFound(id string) error {
	return &NotFoundError{Resource: ResourceProduct, ID: id}
}

// OrderNotFound возвращает ошибку отсутствующего заказа.
func OrderNotFound(id string) error {
	return &NotFoundError{Resource: ResourceOrder, ID: id}
}

func (e *NotFoundError) Error() string {
	resource := e.Resource
	if resource == "" {
		resource = "record"
	}
	if e.ID == "" {
		return resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return (t.Resource == "" || t.Resource == e.Resource) && (t.ID == "" || t.ID == e.ID)
}

// InsufficientStockError — предварительная проверка остатка не прошла.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Requested: %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// StockConflictError — гонка проиграна на этапе списания.
// Applied содержит товары, уже списанные этим запросом до сбоя (режим best_effort их не возвращает).
type StockConflictError struct {
	ProductID string
	Name      string
	Requested int64
	// Available — остаток, перечитанный после сбоя; -1, если перечитать не удалось.
	Available int64
	Applied   []string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("failed to deduct stock for %s. Stock may have changed. Available: %d, Requested: %d",
		e.Name, e.Available, e.Requested)
}

func (e *StockConflictError) Is(target error) bool { return target == ErrStockConflict }

// StockFailure — данные отказа по остатку, которые отдаются клиенту для сверки.
type StockFailure struct {
	ProductID string
	Available int64
	Requested int64
	// Applied — товары, уже списанные этим запросом; пусто, если списаний не было.
	Applied []string
}

// AsStockFailure извлекает StockFailure из InsufficientStockError или StockConflictError.
func AsStockFailure(err error) (StockFailure, bool) {
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		return StockFailure{
			ProductID: insufficient.ProductID,
			Available: insufficient.Available,
			Requested: insufficient.Requested,
			Applied:   []string{},
		}, true
	}
	var conflict *StockConflictError
	if errors.As(err, &conflict) {
		applied := make([]string, len(conflict.Applied))
		copy(applied, conflict.Applied)
		return StockFailure{
			ProductID: conflict.ProductID,
			Available: conflict.Available,
			Requested: conflict.Requested,
			Applied:   applied,
		}, true
	}
	return StockFailure{}, false
}

// ConflictError — нарушение уникальности на уровне хранилища.
type ConflictError struct {
	Field string
	Value string
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// IsClientError проверяет, относится ли ошибка к бизнес-отказам (4xx), а не к инфраструктуре.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrStockConflict) ||
		errors.Is(err, ErrConflict)
}
