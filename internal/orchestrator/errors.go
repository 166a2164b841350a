package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Recital/internal/domain"
)

// Категории ошибок run.
var (
	// ErrConfiguration — некорректная стратегия или конфигурация, run не стартует.
	ErrConfiguration = errors.New("configuration error")

	// ErrEngineInit — движок не инициализировался, run прерван.
	ErrEngineInit = errors.New("engine init failed")

	// ErrItemProcessing — ошибка обработки одного item.
	ErrItemProcessing = errors.New("item processing failed")

	// ErrBatchProcessing — бэкенд не смог обработать батч целиком.
	ErrBatchProcessing = errors.New("batch processing failed")

	// ErrBatchSize — бэкенд вернул не столько результатов, сколько текстов.
	ErrBatchSize = errors.New("batch returned wrong number of results")
)

// ConfigurationError — ошибка конфигурации run.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration: "
	if e.Field != "" {
		msg += e.Field + ": "
	}
	msg += e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// EngineInitError — ошибка Init движка в воркере.
type EngineInitError struct {
	Worker int
	Err    error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("engine init (worker %d): %v", e.Worker, e.Err)
}

func (e *EngineInitError) Is(target error) bool { return target == ErrEngineInit }

func (e *EngineInitError) Unwrap() error { return e.Err }

// ItemProcessingError — ошибка обработки item на этапе Stage.
type ItemProcessingError struct {
	ID    string
	Stage domain.Stage
	Err   error
}

func (e *ItemProcessingError) Error() string {
	return fmt.Sprintf("item %q: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *ItemProcessingError) Is(target error) bool { return target == ErrItemProcessing }

func (e *ItemProcessingError) Unwrap() error { return e.Err }

// BatchProcessingError — ошибка батча целиком. Все IDs батча получают Failure.
type BatchProcessingError struct {
	IDs []string
	Err error
}

func (e *BatchProcessingError) Error() string {
	switch len(e.IDs) {
	case 0:
		return fmt.Sprintf("batch: %v", e.Err)
	case 1:
		return fmt.Sprintf("batch [%s]: %v", e.IDs[0], e.Err)
	default:
		return fmt.Sprintf("batch [%s..%s] (%d items): %v", e.IDs[0], e.IDs[len(e.IDs)-1], len(e.IDs), e.Err)
	}
}

func (e *BatchProcessingError) Is(target error) bool { return target == ErrBatchProcessing }

func (e *BatchProcessingError) Unwrap() error { return e.Err }
