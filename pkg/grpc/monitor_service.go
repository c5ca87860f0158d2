package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MonitorService is declared over well-known types only, see
// proto/waterquality/v1/monitor.proto. Every sensor-scoped call takes the
// sensor key or store id as a StringValue.
const (
	MonitorService_ServiceName = "waterquality.v1.MonitorService"

	MonitorService_GetStatus_FullMethodName  = "/waterquality.v1.MonitorService/GetStatus"
	MonitorService_ListAlerts_FullMethodName = "/waterquality.v1.MonitorService/ListAlerts"
	MonitorService_Refresh_FullMethodName    = "/waterquality.v1.MonitorService/Refresh"
	MonitorService_SetLimiter_FullMethodName = "/waterquality.v1.MonitorService/SetLimiter"
)

type MonitorServiceServer interface {
	GetStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListAlerts(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// SetLimiter takes {"sensor": string, "rate": number, "burst": number}.
	SetLimiter(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterMonitorServiceServer(s grpc.ServiceRegistrar, srv MonitorServiceServer) {
	s.RegisterService(&MonitorService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](fullMethod string, call func(MonitorServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MonitorServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MonitorServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var MonitorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: MonitorService_ServiceName,
	HandlerType: (*MonitorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    unaryHandler(MonitorService_GetStatus_FullMethodName, MonitorServiceServer.GetStatus),
		},
		{
			MethodName: "ListAlerts",
			Handler:    unaryHandler(MonitorService_ListAlerts_FullMethodName, MonitorServiceServer.ListAlerts),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(MonitorService_Refresh_FullMethodName, MonitorServiceServer.Refresh),
		},
		{
			MethodName: "SetLimiter",
			Handler:    unaryHandler(MonitorService_SetLimiter_FullMethodName, MonitorServiceServer.SetLimiter),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "waterquality/v1/monitor.proto",
}

type MonitorServiceClient interface {
	GetStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListAlerts(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Refresh(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetLimiter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type monitorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMonitorServiceClient(cc grpc.ClientConnInterface) MonitorServiceClient {
	return &monitorServiceClient{cc}
}

func (c *monitorServiceClient) GetStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MonitorService_GetStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *monitorServiceClient) ListAlerts(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MonitorService_ListAlerts_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *monitorServiceClient) Refresh(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MonitorService_Refresh_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *monitorServiceClient) SetLimiter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MonitorService_SetLimiter_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
