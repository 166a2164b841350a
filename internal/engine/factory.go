package engine

import (
	"context"
	"fmt"
)

// Factory создаёт Handle для одной конфигурации.
//
// Вариант резолвится один раз в NewFactory, поэтому неизвестный вариант
// обнаруживается до старта воркеров.
type Factory struct {
	adapter Adapter
	cfg     Config
}

// NewFactory создаёт фабрику для cfg.
func NewFactory(reg *Registry, cfg Config) (*Factory, error) {
	if cfg.Variant == "" {
		return nil, fmt.Errorf("%w: variant is empty", ErrUnknownVariant)
	}
	a, err := reg.Get(cfg.Variant)
	if err != nil {
		return nil, err
	}
	return &Factory{adapter: a, cfg: cfg}, nil
}

// Init инициализирует новый Handle.
func (f *Factory) Init(ctx context.Context) (Handle, error) {
	h, err := f.adapter.Init(ctx, f.cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s engine: %w", f.cfg.Variant, err)
	}
	return h, nil
}

// Variant возвращает вариант движка.
func (f *Factory) Variant() Variant {
	return f.cfg.Variant
}

// Capabilities возвращает возможности варианта.
func (f *Factory) Capabilities() Capabilities {
	return f.adapter.Capabilities()
}

// Config возвращает конфигурацию движка.
func (f *Factory) Config() Config {
	return f.cfg
}

// FactoryFunc позволяет использовать функцию как фабрику.
type FactoryFunc func(ctx context.Context) (Handle, error)

// Init вызывает f(ctx).
func (f FactoryFunc) Init(ctx context.Context) (Handle, error) {
	return f(ctx)
}
