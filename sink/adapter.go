// Package sink defines where processed frames go.
package sink

import (
	"fmt"
	"sync"

	"rutkit/internal/record"
)

// EmitFn is what a sink calls to tell the pipeline a frame has been durably
// processed.
type EmitFn func(record.Checkpoint)

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error      // driver-specific config struct
	Push(*record.Frame) error // consume one frame
	Close() error             // idempotent
}

// AckAware sinks emit acks; the compiler binds the callback when present.
type AckAware interface {
	BindAck(EmitFn)
}

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	reg[name] = f
	mu.Unlock()
}

func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink %q", name)
	}
	return f(), nil
}
