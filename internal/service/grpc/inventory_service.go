package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/inventory"
)

// Catalog — операции каталога, доступные транспорту.
type Catalog interface {
	Create(ctx context.Context, createdBy string, in inventory.CreateInput) (domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	LookupPublic(ctx context.Context, qrCode string) (domain.PublicProduct, error)
	LookupFull(ctx context.Context, qrCode string) (domain.Product, error)
	Update(ctx context.Context, actorID, id string, patch domain.ProductPatch) (domain.Product, error)
	Delete(ctx context.Context, actorID, id string) (bool, error)
}

// OrderEngine — оформление заказов и смена статуса.
type OrderEngine interface {
	PlaceOrder(ctx context.Context, buyerID string, lines []domain.OrderLineRequest) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error)
}

// Reader — чтение каталога и заказов с учётом роли.
type Reader interface {
	ListCatalog(ctx context.Context) ([]domain.Product, error)
	GetOrder(ctx context.Context, orderID string, principal domain.Principal) (domain.Order, error)
	ListOrders(ctx context.Context, principal domain.Principal) ([]domain.Order, error)
}

// InventoryService реализует gRPC API каталога и заказов.
type InventoryService struct {
	catalog Catalog
	engine  OrderEngine
	reader  Reader
	logger  *log.Entry
}

var _ InventoryServer = (*InventoryService)(nil)

// NewInventoryService конструирует сервис с зависимостями.
func NewInventoryService(catalog Catalog, engine OrderEngine, reader Reader, logger *log.Entry) *InventoryService {
	if logger == nil {
		logger = defaultLogger()
	}
	return &InventoryService{
		catalog: catalog,
		engine:  engine,
		reader:  reader,
		logger:  logger,
	}
}

// PlaceOrder оформляет покупку от имени покупателя.
func (s *InventoryService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	principal, err := requirePrincipal(ctx, domain.RoleBuyer)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	lines := make([]domain.OrderLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.OrderLineRequest{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	order, err := s.engine.PlaceOrder(ctx, principal.ActorID, lines)
	if err != nil {
		return nil, s.toStatus(err, "place order")
	}
	return &OrderResponse{Order: orderToMessage(order)}, nil
}

// GetOrder возвращает заказ; покупатель видит только свои.
func (s *InventoryService) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.reader.GetOrder(ctx, req.OrderID, principal)
	if err != nil {
		return nil, s.toStatus(err, "load order")
	}
	return &OrderResponse{Order: orderToMessage(order)}, nil
}

// ListOrders возвращает заказы, новые первыми.
func (s *InventoryService) ListOrders(ctx context.Context, _ *ListOrdersRequest) (*ListOrdersResponse, error) {
	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.reader.ListOrders(ctx, principal)
	if err != nil {
		return nil, s.toStatus(err, "list orders")
	}
	resp := &ListOrdersResponse{Orders: make([]*Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, orderToMessage(order))
	}
	return resp, nil
}

// UpdateOrderStatus меняет статус заказа. Только владелец.
func (s *InventoryService) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	if _, err := requirePrincipal(ctx, domain.RoleOwner); err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.engine.UpdateStatus(ctx, req.OrderID, req.Status)
	if err != nil {
		return nil, s.toStatus(err, "update order status")
	}
	return &OrderResponse{Order: orderToMessage(order)}, nil
}

// ListProducts возвращает каталог, новые первыми.
func (s *InventoryService) ListProducts(ctx context.Context, _ *ListProductsRequest) (*ListProductsResponse, error) {
	if _, err := requirePrincipal(ctx); err != nil {
		return nil, err
	}

	products, err := s.reader.ListCatalog(ctx)
	if err != nil {
		return nil, s.toStatus(err, "list products")
	}
	resp := &ListProductsResponse{Products: make([]*Product, 0, len(products))}
	for _, product := range products {
		resp.Products = append(resp.Products, productToMessage(product))
	}
	return resp, nil
}

// LookupProduct ищет товар по QR-коду. Анонимный вызов получает публичную проекцию.
func (s *InventoryService) LookupProduct(ctx context.Context, req *LookupProductRequest) (*LookupProductResponse, error) {
	_, authenticated, err := principalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil || req.QRCode == "" {
		return nil, status.Error(codes.InvalidArgument, "qr_code is required")
	}

	if !authenticated {
		public, err := s.catalog.LookupPublic(ctx, req.QRCode)
		if err != nil {
			return nil, s.toStatus(err, "lookup product")
		}
		return &LookupProductResponse{Public: publicToMessage(public)}, nil
	}

	product, err := s.catalog.LookupFull(ctx, req.QRCode)
	if err != nil {
		return nil, s.toStatus(err, "lookup product")
	}
	return &LookupProductResponse{Product: productToMessage(product)}, nil
}

// GetProduct возвращает полную проекцию товара.
func (s *InventoryService) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	if _, err := requirePrincipal(ctx); err != nil {
		return nil, err
	}
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	product, err := s.catalog.Get(ctx, req.ID)
	if err != nil {
		return nil, s.toStatus(err, "load product")
	}
	return &ProductResponse{Product: productToMessage(product)}, nil
}

// CreateProduct добавляет товар. Только владелец.
func (s *InventoryService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	principal, err := requirePrincipal(ctx, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	product, err := s.catalog.Create(ctx, principal.ActorID, inventory.CreateInput{
		Name:     req.Name,
		Category: req.Category,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, s.toStatus(err, "create product")
	}
	return &ProductResponse{Product: productToMessage(product)}, nil
}

// UpdateProduct частично обновляет товар. Только владелец.
func (s *InventoryService) UpdateProduct(ctx context.Context, req *UpdateProductRequest) (*ProductResponse, error) {
	principal, err := requirePrincipal(ctx, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	product, err := s.catalog.Update(ctx, principal.ActorID, req.ID, domain.ProductPatch{
		Name:     req.Name,
		Category: req.Category,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, s.toStatus(err, "update product")
	}
	return &ProductResponse{Product: productToMessage(product)}, nil
}

// DeleteProduct удаляет товар. Повторное удаление даёт NotFound.
func (s *InventoryService) DeleteProduct(ctx context.Context, req *DeleteProductRequest) (*DeleteProductResponse, error) {
	principal, err := requirePrincipal(ctx, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	deleted, err := s.catalog.Delete(ctx, principal.ActorID, req.ID)
	if err != nil {
		return nil, s.toStatus(err, "delete product")
	}
	if !deleted {
		return nil, status.Error(codes.NotFound, domain.ProductNotFound(req.ID).Error())
	}
	return &DeleteProductResponse{Message: "Item deleted successfully"}, nil
}
