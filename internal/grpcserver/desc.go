package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceDesc describes AllocationService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AllocationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Start",
			Handler: unaryHandler("Start", func(s AllocationServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.Start(ctx, in)
			}),
		},
		{
			MethodName: "Accept",
			Handler: unaryHandler("Accept", func(s AllocationServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.Accept(ctx, in)
			}),
		},
		{
			MethodName: "Reject",
			Handler: unaryHandler("Reject", func(s AllocationServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
				return s.Reject(ctx, in)
			}),
		},
		{
			MethodName: "Statistics",
			Handler: unaryHandler("Statistics", func(s AllocationServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.Statistics(ctx, in)
			}),
		},
		{
			MethodName: "Snapshot",
			Handler: unaryHandler("Snapshot", func(s AllocationServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.Snapshot(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "allocation/v1/allocation.proto",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unaryHandler adapts a typed call into a grpc.MethodHandler.
func unaryHandler[Req any, PReq interface {
	*Req
	proto.Message
}](name string, call func(AllocationServer, context.Context, PReq) (proto.Message, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(AllocationServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(PReq))
		})
	}
}

// ─── Client ──────────────────────────────────────────────────────────────────

// Client calls AllocationService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Start reports whether this call started allocation.
func (c *Client) Start(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, fullMethod("Start"), &emptypb.Empty{}, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) Accept(ctx context.Context, offerID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "Accept", wrapperspb.String(offerID), opts...)
}

func (c *Client) Reject(ctx context.Context, offerID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "Reject", wrapperspb.String(offerID), opts...)
}

func (c *Client) Statistics(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "Statistics", &emptypb.Empty{}, opts...)
}

func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "Snapshot", &emptypb.Empty{}, opts...)
}

func (c *Client) invokeStruct(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
