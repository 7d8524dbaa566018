package bus

import "sync"

// MemoryBus is an in-memory Publisher used by tests and by the engine
// when no real bus collaborator is configured. It records every
// published value and lets a test simulate a user write by calling
// SimulateUserWrite.
type MemoryBus struct {
	mu       sync.Mutex
	values   map[string]any
	handlers map[string]func(v any)
}

// NewMemoryBus returns an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		values:   make(map[string]any),
		handlers: make(map[string]func(v any)),
	}
}

func (b *MemoryBus) SetValue(path string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[path] = v
	return nil
}

func (b *MemoryBus) OnUserWrite(path string, cb func(v any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[path] = cb
}

// Value returns the last value published at path.
func (b *MemoryBus) Value(path string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[path]
	return v, ok
}

// SimulateUserWrite invokes the handler registered for path, as a
// real bus binding would when an external party writes to it. It is
// a no-op if nothing is registered for path.
func (b *MemoryBus) SimulateUserWrite(path string, v any) {
	b.mu.Lock()
	cb := b.handlers[path]
	b.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}
