// Package transport exposes the engine control plane over gRPC.
package transport

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rutkit/internal/telemetry"
	"rutkit/pkg/rut"
)

const ServiceName = "rutkit.v1.Control"

// Control is served by the engine.
type Control interface {
	Ping(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, value string) (rut.Result, error)
}

type engineControl struct{}

func (engineControl) Ping(context.Context) (string, error) { return "pong", nil }

func (engineControl) Evaluate(_ context.Context, value string) (rut.Result, error) {
	res := rut.Evaluate(value)
	telemetry.ObserveEvaluation(res)
	return res, nil
}

var controlDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Control)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rutkit/v1/control",
}

// RegisterControl exposes c on s.
func RegisterControl(s grpc.ServiceRegistrar, c Control) {
	s.RegisterService(&controlDesc, c)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, _ any) (any, error) {
		msg, err := srv.(Control).Ping(ctx)
		if err != nil {
			return nil, err
		}
		return wrapperspb.String(msg), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Ping"}, call)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		res, err := srv.(Control).Evaluate(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, err
		}
		return resultToStruct(res)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Evaluate"}, call)
}

func resultToStruct(r rut.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"cleaned":   r.Cleaned,
		"formatted": r.Formatted,
		"valid":     r.Valid,
		"message":   r.Message(),
	})
}

func resultFromStruct(s *structpb.Struct) rut.Result {
	f := s.GetFields()
	return rut.Result{
		Cleaned:   f["cleaned"].GetStringValue(),
		Formatted: f["formatted"].GetStringValue(),
		Valid:     f["valid"].GetBoolValue(),
	}
}

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// StartServer listens on port and registers the control service.
func StartServer(port int) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis), nil
}

// NewServer registers the control service on a server bound to lis.
func NewServer(lis net.Listener, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc: grpc.NewServer(opts...),
		lis:  lis,
	}
	RegisterControl(s.grpc, engineControl{})
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
