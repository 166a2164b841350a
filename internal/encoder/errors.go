package encoder

import "errors"

// Ошибки кодирования.
var (
	// ErrUnknownKind — неизвестный вид энкодера.
	ErrUnknownKind = errors.New("unknown encoder kind")

	// ErrInvalidConfig — некорректная конфигурация энкодера.
	ErrInvalidConfig = errors.New("invalid encoder config")

	// ErrEncode — внешний кодировщик завершился с ошибкой.
	ErrEncode = errors.New("encode failed")
)
