package transform

import (
	"context"
	"sync"
)

// Snapshot is the pair of outputs change detection compares.
type Snapshot struct {
	Cleaned string
	Valid   bool
}

// Memo remembers the last outputs per key.
type Memo interface {
	// Swap stores s under key and reports whether it differs from the
	// previous value. A key seen for the first time counts as changed.
	Swap(ctx context.Context, key string, s Snapshot) (changed bool, err error)
}

// MemoryMemo is a process-local Memo.
type MemoryMemo struct {
	mu   sync.Mutex
	last map[string]Snapshot
}

func NewMemoryMemo() *MemoryMemo {
	return &MemoryMemo{last: make(map[string]Snapshot)}
}

func (m *MemoryMemo) Swap(_ context.Context, key string, s Snapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.last[key]
	m.last[key] = s
	return !ok || prev != s, nil
}

// Len reports the number of keys remembered.
func (m *MemoryMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}
