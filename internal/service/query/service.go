package query

import (
	"context"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// Service — read-only фасад над каталогом и журналом заказов с учётом роли.
type Service struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
}

// NewService создаёт фасад чтения.
func NewService(products domain.ProductRepository, orders domain.OrderRepository) *Service {
	return &Service{products: products, orders: orders}
}

// ListCatalog возвращает полные проекции товаров, новые первыми.
func (s *Service) ListCatalog(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

// GetOrder возвращает заказ. Покупатель видит только свои заказы;
// чужой заказ для него неотличим от отсутствующего.
func (s *Service) GetOrder(ctx context.Context, orderID string, principal domain.Principal) (domain.Order, error) {
	switch principal.Role {
	case domain.RoleOwner:
		return s.orders.Get(ctx, orderID)
	case domain.RoleBuyer:
		return s.orders.GetForBuyer(ctx, orderID, principal.ActorID)
	default:
		return domain.Order{}, domain.InvalidField("role", domain.ErrRoleInvalid)
	}
}

// ListOrders: владелец видит все заказы, покупатель только свои; новые первыми.
func (s *Service) ListOrders(ctx context.Context, principal domain.Principal) ([]domain.Order, error) {
	switch principal.Role {
	case domain.RoleOwner:
		return s.orders.List(ctx)
	case domain.RoleBuyer:
		return s.orders.ListByBuyer(ctx, principal.ActorID)
	default:
		return nil, domain.InvalidField("role", domain.ErrRoleInvalid)
	}
}
