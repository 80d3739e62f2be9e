package handler

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/ebook-shop/internal/core/domain"
	"github.com/rl1809/ebook-shop/internal/core/service"
)

const (
	OrderServiceName = "ebookshop.v1.OrderService"

	// ShopperMetadataKey carries the shopper id when no JWT secret is configured.
	ShopperMetadataKey = "x-shopper-id"
)

// orderServiceServer is the method set registered under OrderServiceName.
// Messages are google.protobuf.Struct so clients need no generated stubs.
type orderServiceServer interface {
	CreateFromCart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateDirect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	MarkPaid(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	IssueDownloadToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type GRPCHandler struct {
	orders    *service.OrderService
	downloads *service.DownloadService
}

func NewGRPCHandler(orders *service.OrderService, downloads *service.DownloadService) *GRPCHandler {
	return &GRPCHandler{orders: orders, downloads: downloads}
}

var _ orderServiceServer = (*GRPCHandler)(nil)

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*orderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateFromCart", orderServiceServer.CreateFromCart),
		unaryMethod("CreateDirect", orderServiceServer.CreateDirect),
		unaryMethod("GetOrder", orderServiceServer.GetOrder),
		unaryMethod("ListOrders", orderServiceServer.ListOrders),
		unaryMethod("MarkPaid", orderServiceServer.MarkPaid),
		unaryMethod("Cancel", orderServiceServer.Cancel),
		unaryMethod("IssueDownloadToken", orderServiceServer.IssueDownloadToken),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterGRPCHandler(s grpc.ServiceRegistrar, h *GRPCHandler) {
	s.RegisterService(&orderServiceDesc, h)
}

func unaryMethod(name string, call func(orderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + OrderServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(orderServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(orderServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// UnaryServerInterceptor authenticates calls to OrderServiceName and leaves
// other services, such as health checks, untouched.
func (a *Authenticator) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+OrderServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		id, err := a.resolve(firstValue(md, "authorization"), firstValue(md, ShopperMetadataKey))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(withShopper(ctx, id), req)
	}
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *GRPCHandler) CreateFromCart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.orders.CreateFromCart(ctx, ShopperFromContext(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(o)
}

func (h *GRPCHandler) CreateDirect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ebookID, err := int64Field(in, "ebookId")
	if err != nil {
		return nil, err
	}
	o, err := h.orders.CreateDirectOrder(ctx, ShopperFromContext(ctx), ebookID)
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(o)
}

func (h *GRPCHandler) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.orders.GetDetail(ctx, ShopperFromContext(ctx), stringField(in, "orderId"))
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(o)
}

func (h *GRPCHandler) ListOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	orders, err := h.orders.GetMyOrders(ctx, ShopperFromContext(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	list := make([]any, 0, len(orders))
	for _, s := range orders {
		list = append(list, map[string]any{
			"id":          s.ID,
			"orderNumber": s.OrderNumber,
			"status":      string(s.Status),
			"totalAmount": s.TotalAmount.StringFixed(2),
			"finalAmount": s.FinalAmount.StringFixed(2),
			"createdAt":   s.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return newStruct(map[string]any{"orders": list})
}

func (h *GRPCHandler) MarkPaid(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.orders.MarkPaid(ctx, ShopperFromContext(ctx), stringField(in, "orderId"))
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(o)
}

func (h *GRPCHandler) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := h.orders.Cancel(ctx, ShopperFromContext(ctx), stringField(in, "orderId"))
	if err != nil {
		return nil, grpcError(err)
	}
	return orderStruct(o)
}

func (h *GRPCHandler) IssueDownloadToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ebookID, err := int64Field(in, "ebookId")
	if err != nil {
		return nil, err
	}
	t, err := h.downloads.Issue(ctx, ShopperFromContext(ctx), stringField(in, "orderId"), ebookID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{
		"token":     t.Token,
		"expiresAt": t.ExpiresAt.Format(time.RFC3339Nano),
	})
}

// grpcError checks ErrExpired before ErrValidation, which it wraps.
func grpcError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, service.ErrExpired):
		code = codes.FailedPrecondition
	case errors.Is(err, service.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, service.ErrConflict):
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func int64Field(in *structpb.Struct, key string) (int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	n := v.GetNumberValue()
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber || n != math.Trunc(n) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int64(n), nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func orderStruct(o *domain.Order) (*structpb.Struct, error) {
	lines := make([]any, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, map[string]any{
			"ebookId":   l.EbookID(),
			"title":     l.Title(),
			"price":     l.Price().StringFixed(2),
			"quantity":  l.Quantity(),
			"lineTotal": l.LineTotal().StringFixed(2),
		})
	}
	m := map[string]any{
		"id":          o.ID,
		"orderNumber": o.OrderNumber,
		"source":      string(o.Source),
		"status":      string(o.Status),
		"totalAmount": o.TotalAmount.StringFixed(2),
		"finalAmount": o.FinalAmount.StringFixed(2),
		"createdAt":   o.CreatedAt.Format(time.RFC3339Nano),
		"lines":       lines,
	}
	if o.PaidAt != nil {
		m["paidAt"] = o.PaidAt.Format(time.RFC3339Nano)
	}
	if o.CanceledAt != nil {
		m["canceledAt"] = o.CanceledAt.Format(time.RFC3339Nano)
	}
	return newStruct(m)
}
