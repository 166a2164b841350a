package engine

import "errors"

// Ошибки движков.
var (
	// ErrUnknownVariant — вариант движка не зарегистрирован.
	ErrUnknownVariant = errors.New("unknown engine variant")

	// ErrModelRequired — не указана модель.
	ErrModelRequired = errors.New("engine model is required")

	// ErrInvalidParam — некорректный параметр движка.
	ErrInvalidParam = errors.New("invalid engine parameter")

	// ErrEmptyText — пустой текст для синтеза.
	ErrEmptyText = errors.New("empty text")

	// ErrRejected — движок отказался синтезировать текст.
	ErrRejected = errors.New("text rejected by engine")

	// ErrBackend — сервер или процесс синтеза вернул ошибку.
	ErrBackend = errors.New("synthesis backend error")

	// ErrBatchMismatch — число результатов не совпадает с числом текстов.
	ErrBatchMismatch = errors.New("batch result count mismatch")

	// ErrHandleClosed — Handle уже закрыт или процесс завершился.
	ErrHandleClosed = errors.New("engine handle closed")
)
