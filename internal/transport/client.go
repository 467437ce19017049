package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rutkit/pkg/rut"
)

// Client talks to an engine's control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial prepares a plaintext connection to the engine on localhost:port.
func Dial(port int) (*Client, error) {
	return DialTarget(fmt.Sprintf("localhost:%d", port))
}

// DialTarget connects to any gRPC target. Without options the connection is
// plaintext.
func DialTarget(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: cc}, nil
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Ping", &emptypb.Empty{}, out); err != nil {
		return "", fmt.Errorf("control ping: %w", err)
	}
	return out.GetValue(), nil
}

func (c *Client) Evaluate(ctx context.Context, value string) (rut.Result, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Evaluate", wrapperspb.String(value), out); err != nil {
		return rut.Result{}, fmt.Errorf("control evaluate: %w", err)
	}
	return resultFromStruct(out), nil
}

func (c *Client) Close() error { return c.conn.Close() }
