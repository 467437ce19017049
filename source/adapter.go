// Package source defines how records enter the engine.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rutkit/internal/record"
)

// EmitFunc hands a frame to the pipeline. A non-nil error stops the source.
type EmitFunc func(*record.Frame) error

// Adapter is implemented by every source driver.
type Adapter interface {
	Configure(any) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// AckAware sources want to hear when a frame has been processed end to end.
type AckAware interface {
	OnAck(record.Ack)
}

// Factory builds a fresh Adapter.
type Factory func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]Factory{}
)

// Register makes a driver available under name, e.g. "kafka/sarama" or "lines".
func Register(name string, f Factory) {
	mu.Lock()
	reg[name] = f
	mu.Unlock()
}

// NewAdapter returns a new driver registered under name.
func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source: unsupported driver %q", name)
	}
	return f(), nil
}

// Drivers lists registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
