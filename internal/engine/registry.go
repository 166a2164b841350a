package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр вариантов движка. Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Variant]Adapter
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Variant]Adapter),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными вариантами.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewToneAdapter())
	r.Register(NewPiperAdapter())
	r.Register(NewKokoroAdapter())
	r.Register(NewBatchHTTPAdapter())
	return r
}

// Register регистрирует адаптер. Существующий вариант перезаписывается.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Variant()] = a
}

// Get возвращает адаптер по варианту.
func (r *Registry) Get(v Variant) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	return a, nil
}

// Has проверяет, зарегистрирован ли вариант.
func (r *Registry) Has(v Variant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[v]
	return ok
}

// Variants возвращает отсортированный список вариантов.
func (r *Registry) Variants() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Variant, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
