package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "ims.v1.InventoryService"

const (
	MethodPlaceOrder        = "/" + ServiceName + "/PlaceOrder"
	MethodGetOrder          = "/" + ServiceName + "/GetOrder"
	MethodListOrders        = "/" + ServiceName + "/ListOrders"
	MethodUpdateOrderStatus = "/" + ServiceName + "/UpdateOrderStatus"
	MethodListProducts      = "/" + ServiceName + "/ListProducts"
	MethodLookupProduct     = "/" + ServiceName + "/LookupProduct"
	MethodGetProduct        = "/" + ServiceName + "/GetProduct"
	MethodCreateProduct     = "/" + ServiceName + "/CreateProduct"
	MethodUpdateProduct     = "/" + ServiceName + "/UpdateProduct"
	MethodDeleteProduct     = "/" + ServiceName + "/DeleteProduct"
)

// InventoryServer — серверная сторона ims.v1.InventoryService.
type InventoryServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*OrderResponse, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
	LookupProduct(context.Context, *LookupProductRequest) (*LookupProductResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*ProductResponse, error)
	CreateProduct(context.Context, *CreateProductRequest) (*ProductResponse, error)
	UpdateProduct(context.Context, *UpdateProductRequest) (*ProductResponse, error)
	DeleteProduct(context.Context, *DeleteProductRequest) (*DeleteProductResponse, error)
}

// RegisterInventoryServer регистрирует реализацию на gRPC-сервере.
func RegisterInventoryServer(registrar grpc.ServiceRegistrar, srv InventoryServer) {
	registrar.RegisterService(&InventoryServiceDesc, srv)
}

// InventoryServiceDesc описывает методы сервиса для grpc.Server.
var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: unaryHandler(MethodPlaceOrder, InventoryServer.PlaceOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, InventoryServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, InventoryServer.ListOrders)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler(MethodUpdateOrderStatus, InventoryServer.UpdateOrderStatus)},
		{MethodName: "ListProducts", Handler: unaryHandler(MethodListProducts, InventoryServer.ListProducts)},
		{MethodName: "LookupProduct", Handler: unaryHandler(MethodLookupProduct, InventoryServer.LookupProduct)},
		{MethodName: "GetProduct", Handler: unaryHandler(MethodGetProduct, InventoryServer.GetProduct)},
		{MethodName: "CreateProduct", Handler: unaryHandler(MethodCreateProduct, InventoryServer.CreateProduct)},
		{MethodName: "UpdateProduct", Handler: unaryHandler(MethodUpdateProduct, InventoryServer.UpdateProduct)},
		{MethodName: "DeleteProduct", Handler: unaryHandler(MethodDeleteProduct, InventoryServer.DeleteProduct)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ims/v1/inventory.json",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(InventoryServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InventoryClient — клиент ims.v1.InventoryService поверх JSON-кодека.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

// NewInventoryClient создаёт клиента поверх установленного соединения.
func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodPlaceOrder, in, opts)
}

func (c *InventoryClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *InventoryClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *InventoryClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodUpdateOrderStatus, in, opts)
}

func (c *InventoryClient) ListProducts(ctx context.Context, in *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	return invoke[ListProductsResponse](ctx, c.cc, MethodListProducts, in, opts)
}

func (c *InventoryClient) LookupProduct(ctx context.Context, in *LookupProductRequest, opts ...grpc.CallOption) (*LookupProductResponse, error) {
	return invoke[LookupProductResponse](ctx, c.cc, MethodLookupProduct, in, opts)
}

func (c *InventoryClient) GetProduct(ctx context.Context, in *GetProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodGetProduct, in, opts)
}

func (c *InventoryClient) CreateProduct(ctx context.Context, in *CreateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodCreateProduct, in, opts)
}

func (c *InventoryClient) UpdateProduct(ctx context.Context, in *UpdateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, MethodUpdateProduct, in, opts)
}

func (c *InventoryClient) DeleteProduct(ctx context.Context, in *DeleteProductRequest, opts ...grpc.CallOption) (*DeleteProductResponse, error) {
	return invoke[DeleteProductResponse](ctx, c.cc, MethodDeleteProduct, in, opts)
}

// WithPrincipal добавляет в исходящий контекст метаданные принципала.
func WithPrincipal(ctx context.Context, actorID, role string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataActorID, actorID, MetadataActorRole, role)
}
