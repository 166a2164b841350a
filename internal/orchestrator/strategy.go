package orchestrator

import (
	"fmt"
	"runtime"
)

// StrategyKind — вид стратегии выполнения.
type StrategyKind string

const (
	// KindPool — пул воркеров, у каждого свой Handle движка.
	KindPool StrategyKind = "pool"

	// KindMicroBatch — последовательные батчи на одном Handle.
	KindMicroBatch StrategyKind = "microbatch"
)

// Strategy — стратегия выполнения run.
//
// Для pool используется Concurrency, для microbatch — BatchSize.
type Strategy struct {
	Kind        StrategyKind `json:"kind" yaml:"kind"`
	Concurrency int          `json:"concurrency,omitempty" yaml:"concurrency"`
	BatchSize   int          `json:"batch_size,omitempty" yaml:"batch_size"`
}

// PerProcessPool возвращает стратегию пула из n воркеров.
func PerProcessPool(n int) Strategy {
	return Strategy{Kind: KindPool, Concurrency: n}
}

// DefaultPool возвращает пул по числу CPU.
func DefaultPool() Strategy {
	return PerProcessPool(runtime.NumCPU())
}

// MicroBatch возвращает стратегию батчей по n item'ов.
func MicroBatch(n int) Strategy {
	return Strategy{Kind: KindMicroBatch, BatchSize: n}
}

// Validate проверяет параметры стратегии.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindPool:
		if s.Concurrency <= 0 {
			return &ConfigurationError{
				Field:   "strategy.concurrency",
				Message: fmt.Sprintf("must be positive, got %d", s.Concurrency),
			}
		}
	case KindMicroBatch:
		if s.BatchSize <= 0 {
			return &ConfigurationError{
				Field:   "strategy.batch_size",
				Message: fmt.Sprintf("must be positive, got %d", s.BatchSize),
			}
		}
	default:
		return &ConfigurationError{
			Field:   "strategy.kind",
			Message: fmt.Sprintf("unknown strategy %q", s.Kind),
		}
	}
	return nil
}

// String возвращает краткое описание, например "pool(8)".
func (s Strategy) String() string {
	switch s.Kind {
	case KindPool:
		return fmt.Sprintf("pool(%d)", s.Concurrency)
	case KindMicroBatch:
		return fmt.Sprintf("microbatch(%d)", s.BatchSize)
	default:
		return string(s.Kind)
	}
}
