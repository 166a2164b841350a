package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/shaiso/Recital/internal/audio"
)

// Variant — вариант движка (tone, piper, kokoro, batchhttp).
type Variant string

const (
	VariantTone      Variant = "tone"
	VariantPiper     Variant = "piper"
	VariantKokoro    Variant = "kokoro"
	VariantBatchHTTP Variant = "batchhttp"
)

// Capabilities описывает, что умеет вариант движка.
type Capabilities struct {
	// Batch — Handle реализует BatchHandle нативно.
	Batch bool `json:"batch"`

	// BatchOnly — у бэкенда есть только пакетный инференс,
	// одиночный синтез эмулируется батчем из одного текста.
	BatchOnly bool `json:"batch_only"`

	// Description — короткое описание для `recital engines`.
	Description string `json:"description"`
}

// Config — конфигурация движка.
//
// Params — параметры конкретного варианта, например:
//
//	{"length_scale": 1.2, "binary": "piper"}
//	{"base_url": "http://localhost:8102", "voice": "af_nova"}
type Config struct {
	Variant  Variant        `json:"variant" yaml:"variant"`
	ModelRef string         `json:"model,omitempty" yaml:"model"`
	Params   map[string]any `json:"params,omitempty" yaml:"params"`
}

// Adapter — вариант движка.
//
// Init загружает модель и может быть дорогим. Ошибка Init фатальна
// для всего run.
type Adapter interface {
	Variant() Variant
	Capabilities() Capabilities
	Init(ctx context.Context, cfg Config) (Handle, error)
}

// Handle — инициализированный движок.
//
// Handle не обязан быть потокобезопасным: оркестратор использует
// каждый Handle только из одной горутины.
type Handle interface {
	// Synthesize синтезирует один текст.
	// Ошибка относится только к этому тексту.
	Synthesize(ctx context.Context, text string) (audio.Audio, error)

	// Close освобождает ресурсы (процесс, соединения).
	Close() error
}

// BatchResult — результат синтеза одного текста из батча.
type BatchResult struct {
	Audio audio.Audio
	Err   error
}

// BatchHandle — Handle с пакетным синтезом.
type BatchHandle interface {
	Handle

	// SynthesizeBatch синтезирует тексты за один вызов.
	// Возвращённая ошибка относится ко всему батчу. Иначе len(результатов)
	// должен совпадать с len(texts), а ошибки отдельных текстов лежат в BatchResult.Err.
	SynthesizeBatch(ctx context.Context, texts []string) ([]BatchResult, error)
}

// AsBatch возвращает BatchHandle. Если h не умеет батчи,
// тексты синтезируются по одному.
func AsBatch(h Handle) BatchHandle {
	if bh, ok := h.(BatchHandle); ok {
		return bh
	}
	return sequentialBatch{Handle: h}
}

type sequentialBatch struct {
	Handle
}

func (s sequentialBatch) SynthesizeBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := s.Synthesize(ctx, text)
		results[i] = BatchResult{Audio: a, Err: err}
	}
	return results, nil
}

// String извлекает строковый параметр.
func (c Config) String(key, def string) string {
	if v, ok := c.Params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// Float извлекает числовой параметр. Строки парсятся (параметры из CLI).
func (c Config) Float(key string, def float64) float64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// Int извлекает целочисленный параметр.
func (c Config) Int(key string, def int) int {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Bool извлекает булев параметр.
func (c Config) Bool(key string, def bool) bool {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p
		}
	}
	return def
}

// Seconds извлекает длительность, заданную в секундах.
func (c Config) Seconds(key string, def time.Duration) time.Duration {
	f := c.Float(key, -1)
	if f <= 0 {
		return def
	}
	return time.Duration(f * float64(time.Second))
}
