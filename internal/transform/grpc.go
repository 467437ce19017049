package transform

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service plugins expose.
const ServiceName = "rutkit.v1.TransformService"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Transformer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Metadata", Handler: unary("Metadata", serveMetadata)},
		{MethodName: "Health", Handler: unary("Health", serveHealth)},
		{MethodName: "Transform", Handler: unary("Transform", serveTransform)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rutkit/v1/transform",
}

// RegisterServer exposes t on s.
func RegisterServer(s grpc.ServiceRegistrar, t Transformer) {
	s.RegisterService(&serviceDesc, t)
}

func unary[T any, PT interface {
	*T
	proto.Message
}](method string, call func(context.Context, Transformer, PT) (proto.Message, error)) grpc.MethodHandler {
	full := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PT(new(T))
		if err := dec(in); err != nil {
			return nil, err
		}
		t := srv.(Transformer)
		if interceptor == nil {
			return call(ctx, t, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(ctx, t, req.(PT))
		})
	}
}

func serveMetadata(ctx context.Context, t Transformer, _ *emptypb.Empty) (proto.Message, error) {
	info, err := t.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return infoToStruct(info)
}

func serveHealth(ctx context.Context, t Transformer, _ *emptypb.Empty) (proto.Message, error) {
	h, err := t.Health(ctx)
	if err != nil {
		return nil, err
	}
	return healthToStruct(h)
}

func serveTransform(ctx context.Context, t Transformer, in *structpb.Struct) (proto.Message, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := t.Transform(ctx, req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return responseToStruct(resp)
}

// GRPCClient calls a remote plugin.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient prepares a connection to target. Without options the
// connection is plaintext.
func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out proto.Message) error {
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return fmt.Errorf("transform %s: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) Metadata(ctx context.Context) (Info, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Metadata", &emptypb.Empty{}, out); err != nil {
		return Info{}, err
	}
	return infoFromStruct(out), nil
}

func (c *GRPCClient) Health(ctx context.Context) (Health, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Health", &emptypb.Empty{}, out); err != nil {
		return Health{}, err
	}
	return healthFromStruct(out), nil
}

func (c *GRPCClient) Transform(ctx context.Context, req Request) (Response, error) {
	in, err := requestToStruct(req)
	if err != nil {
		return Response{}, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Transform", in, out); err != nil {
		return Response{}, err
	}
	return responseFromStruct(out)
}

func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
