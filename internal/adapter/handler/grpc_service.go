package handler

import (
	"context"

	"google.golang.org/grpc"
)

const orderServiceName = "storefront.v1.OrderService"

type OrderServiceServer interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error)
	CancelOrder(ctx context.Context, req *CancelOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "CancelOrder", Handler: cancelOrderHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/order_service",
}

func unary[Req any](
	method string,
	call func(srv OrderServiceServer, ctx context.Context, req *Req) (*OrderResponse, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + orderServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	placeOrderHandler = unary("PlaceOrder", func(srv OrderServiceServer, ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
		return srv.PlaceOrder(ctx, req)
	})
	cancelOrderHandler = unary("CancelOrder", func(srv OrderServiceServer, ctx context.Context, req *CancelOrderRequest) (*OrderResponse, error) {
		return srv.CancelOrder(ctx, req)
	})
	getOrderHandler = unary("GetOrder", func(srv OrderServiceServer, ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
		return srv.GetOrder(ctx, req)
	})
)

// OrderServiceClient calls the order service over a connection using the
// JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+orderServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "PlaceOrder", in, opts)
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "CancelOrder", in, opts)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "GetOrder", in, opts)
}
