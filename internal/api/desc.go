package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "offsync.v1.QueueService"

// Full method names.
const (
	MethodEnqueue     = "/" + ServiceName + "/Enqueue"
	MethodRemove      = "/" + ServiceName + "/Remove"
	MethodSync        = "/" + ServiceName + "/Sync"
	MethodStatus      = "/" + ServiceName + "/Status"
	MethodClear       = "/" + ServiceName + "/Clear"
	MethodSetOnline   = "/" + ServiceName + "/SetOnline"
	MethodProbe       = "/" + ServiceName + "/Probe"
	MethodHistory     = "/" + ServiceName + "/History"
	MethodWatchEvents = "/" + ServiceName + "/WatchEvents"
)

// QueueServiceServer is the daemon side of the control API. Messages are
// protobuf well-known types so no generated code is needed.
type QueueServiceServer interface {
	Enqueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Remove(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Sync(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SetOnline(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	Probe(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	History(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
	WatchEvents(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// QueueServiceDesc describes QueueService for grpc.Server.RegisterService.
var QueueServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueueServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Enqueue", MethodEnqueue, QueueServiceServer.Enqueue),
		unary("Remove", MethodRemove, QueueServiceServer.Remove),
		unary("Sync", MethodSync, QueueServiceServer.Sync),
		unary("Status", MethodStatus, QueueServiceServer.Status),
		unary("Clear", MethodClear, QueueServiceServer.Clear),
		unary("SetOnline", MethodSetOnline, QueueServiceServer.SetOnline),
		unary("Probe", MethodProbe, QueueServiceServer.Probe),
		unary("History", MethodHistory, QueueServiceServer.History),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "offsync/v1/queue.proto",
}

// RegisterQueueServiceServer registers srv on s.
func RegisterQueueServiceServer(s grpc.ServiceRegistrar, srv QueueServiceServer) {
	s.RegisterService(&QueueServiceDesc, srv)
}

// unary builds the method descriptor for a single request/response call.
func unary[Req any, Res any, PReq interface {
	*Req
	proto.Message
}](name, fullMethod string, call func(QueueServiceServer, context.Context, PReq) (*Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QueueServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(QueueServiceServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(QueueServiceServer).WatchEvents(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// QueueServiceClient is the caller side of QueueService.
type QueueServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewQueueServiceClient returns a client bound to cc.
func NewQueueServiceClient(cc grpc.ClientConnInterface) *QueueServiceClient {
	return &QueueServiceClient{cc: cc}
}

func (c *QueueServiceClient) Enqueue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodEnqueue, in, out, opts...)
}

func (c *QueueServiceClient) Remove(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	return out, c.cc.Invoke(ctx, MethodRemove, in, out, opts...)
}

func (c *QueueServiceClient) Sync(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodSync, in, out, opts...)
}

func (c *QueueServiceClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodStatus, in, out, opts...)
}

func (c *QueueServiceClient) Clear(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	return out, c.cc.Invoke(ctx, MethodClear, in, out, opts...)
}

func (c *QueueServiceClient) SetOnline(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	return out, c.cc.Invoke(ctx, MethodSetOnline, in, out, opts...)
}

func (c *QueueServiceClient) Probe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodProbe, in, out, opts...)
}

func (c *QueueServiceClient) History(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodHistory, in, out, opts...)
}

func (c *QueueServiceClient) WatchEvents(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &QueueServiceDesc.Streams[0], MethodWatchEvents, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
