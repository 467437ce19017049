package transform

import (
	"context"
	"fmt"
)

// Status tells the engine what to do with a transform result.
type Status int32

const (
	StatusOK    Status = iota // forward Events
	StatusDrop                // nothing to forward; the input is done
	StatusError               // the call failed and may be retried
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDrop:
		return "DROP"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "OK":
		return StatusOK, nil
	case "DROP":
		return StatusDrop, nil
	case "ERROR":
		return StatusError, nil
	}
	return 0, fmt.Errorf("transform: unknown status %q", s)
}

type Metadata struct {
	SourceOffset string
	Attributes   map[string]string
}

type Request struct {
	Key      []byte
	Payload  []byte
	Metadata Metadata
}

type Event struct {
	ID       string
	Key      []byte
	Value    []byte
	Metadata Metadata
}

type Response struct {
	Status Status
	Events []Event
	Detail string
}

// Info describes a plugin.
type Info struct {
	Name         string
	Version      string
	Protocol     string
	Capabilities map[string]string
}

type Health struct {
	OK      bool
	Details string
}

// Transformer is implemented by plugins.
type Transformer interface {
	Metadata(context.Context) (Info, error)
	Health(context.Context) (Health, error)
	Transform(context.Context, Request) (Response, error)
}

// Client wraps a plugin, in-process or remote, behind one API so runner
// stages do not care about the transport.
type Client interface {
	Transformer
	Close() error
}

// InProcessClient adapts a plugin compiled into the engine.
type InProcessClient struct {
	impl Transformer
}

func NewInProcessClient(impl Transformer) *InProcessClient { return &InProcessClient{impl: impl} }

func (c *InProcessClient) Metadata(ctx context.Context) (Info, error) { return c.impl.Metadata(ctx) }
func (c *InProcessClient) Health(ctx context.Context) (Health, error) { return c.impl.Health(ctx) }
func (c *InProcessClient) Transform(ctx context.Context, req Request) (Response, error) {
	return c.impl.Transform(ctx, req)
}
func (c *InProcessClient) Close() error {
	if cl, ok := c.impl.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
