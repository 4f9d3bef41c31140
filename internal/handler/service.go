package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinic.v1.StatsService"

const (
	MethodDashboardStats = "/" + ServiceName + "/GetDashboardStats"
	MethodHealthTrends   = "/" + ServiceName + "/GetHealthTrends"
)

// StatsServer is the server API for clinic.v1.StatsService. Responses are
// google.protobuf.Struct values shaped like the REST bodies.
type StatsServer interface {
	GetDashboardStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetHealthTrends(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterStatsServer(s grpc.ServiceRegistrar, srv StatsServer) {
	s.RegisterService(&StatsServiceDesc, srv)
}

func unary(method string, call func(StatsServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StatsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StatsServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var StatsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDashboardStats",
			Handler:    unary(MethodDashboardStats, StatsServer.GetDashboardStats),
		},
		{
			MethodName: "GetHealthTrends",
			Handler:    unary(MethodHealthTrends, StatsServer.GetHealthTrends),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinic/v1/stats.proto",
}

// StatsClient calls StatsService over any connection.
type StatsClient struct {
	cc grpc.ClientConnInterface
}

func NewStatsClient(cc grpc.ClientConnInterface) *StatsClient {
	return &StatsClient{cc: cc}
}

func (c *StatsClient) GetDashboardStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodDashboardStats, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StatsClient) GetHealthTrends(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodHealthTrends, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
