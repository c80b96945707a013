package host

import (
	"context"
	"maps"
	"sync"
)

// MemoryBag is a process-local PropertyBag. Values survive for the lifetime
// of the bag only.
type MemoryBag struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryBag returns a bag seeded with initial (which may be nil).
func NewMemoryBag(initial map[string]string) *MemoryBag {
	values := maps.Clone(initial)
	if values == nil {
		values = make(map[string]string)
	}
	return &MemoryBag{values: values}
}

// LoadCustomProperties returns a handle holding a copy of the stored values.
func (b *MemoryBag) LoadCustomProperties(ctx context.Context) (CustomProperties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return &memoryProps{bag: b, values: maps.Clone(b.values), staged: map[string]string{}}, nil
}

// Value returns the committed value for name.
func (b *MemoryBag) Value(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[name]
	return v, ok
}

type memoryProps struct {
	bag    *MemoryBag
	values map[string]string
	staged map[string]string
}

func (p *memoryProps) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p *memoryProps) Set(name, value string) {
	p.values[name] = value
	p.staged[name] = value
}

func (p *memoryProps) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.bag.mu.Lock()
	defer p.bag.mu.Unlock()
	maps.Copy(p.bag.values, p.staged)
	return nil
}
