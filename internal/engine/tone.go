package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shaiso/Recital/internal/audio"
)

// Параметры tone по умолчанию.
const (
	defaultToneSampleRate = 22050
	defaultToneFrequency  = 440.0
	defaultToneMsPerChar  = 60
	defaultToneMinMs      = 200
	defaultToneAmplitude  = 0.3
)

// ToneAdapter — синтетический движок без модели.
//
// Генерирует синусоиду, длина которой пропорциональна длине текста.
// Используется для dry-run конвейера и в тестах.
//
// Параметры:
//
//	{
//	    "sample_rate": 22050,
//	    "frequency": 440,
//	    "ms_per_char": 60,
//	    "fail_on": "BAD"     // тексты, содержащие подстроку, падают
//	}
type ToneAdapter struct{}

// NewToneAdapter создаёт ToneAdapter.
func NewToneAdapter() *ToneAdapter {
	return &ToneAdapter{}
}

// Variant возвращает вариант движка.
func (a *ToneAdapter) Variant() Variant {
	return VariantTone
}

// Capabilities возвращает возможности tone.
func (a *ToneAdapter) Capabilities() Capabilities {
	return Capabilities{
		Batch:       true,
		Description: "synthetic sine tone, no model required",
	}
}

// Init создаёт Handle. Модель не нужна.
func (a *ToneAdapter) Init(ctx context.Context, cfg Config) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &ToneHandle{
		sampleRate: cfg.Int("sample_rate", defaultToneSampleRate),
		frequency:  cfg.Float("frequency", defaultToneFrequency),
		msPerChar:  cfg.Int("ms_per_char", defaultToneMsPerChar),
		failOn:     cfg.String("fail_on", ""),
	}
	if h.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample_rate %d", ErrInvalidParam, h.sampleRate)
	}
	if h.frequency <= 0 || h.frequency >= float64(h.sampleRate)/2 {
		return nil, fmt.Errorf("%w: frequency %g", ErrInvalidParam, h.frequency)
	}
	if h.msPerChar <= 0 {
		return nil, fmt.Errorf("%w: ms_per_char %d", ErrInvalidParam, h.msPerChar)
	}
	return h, nil
}

// ToneHandle генерирует синусоиду.
type ToneHandle struct {
	sampleRate int
	frequency  float64
	msPerChar  int
	failOn     string
}

// Synthesize генерирует тон для text.
func (h *ToneHandle) Synthesize(ctx context.Context, text string) (audio.Audio, error) {
	if err := ctx.Err(); err != nil {
		return audio.Audio{}, err
	}
	if strings.TrimSpace(text) == "" {
		return audio.Audio{}, ErrEmptyText
	}
	if h.failOn != "" && strings.Contains(text, h.failOn) {
		return audio.Audio{}, fmt.Errorf("%w: contains %q", ErrRejected, h.failOn)
	}

	ms := max(len([]rune(text))*h.msPerChar, defaultToneMinMs)
	n := h.sampleRate * ms / 1000

	samples := make([]int16, n)
	step := 2 * math.Pi * h.frequency / float64(h.sampleRate)
	for i := range samples {
		samples[i] = int16(defaultToneAmplitude * math.MaxInt16 * math.Sin(step*float64(i)))
	}

	return audio.Audio{Samples: samples, SampleRate: h.sampleRate, Channels: 1}, nil
}

// SynthesizeBatch генерирует тоны для всех текстов.
func (h *ToneHandle) SynthesizeBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]BatchResult, len(texts))
	for i, text := range texts {
		a, err := h.Synthesize(ctx, text)
		results[i] = BatchResult{Audio: a, Err: err}
	}
	return results, nil
}

// Close ничего не делает.
func (h *ToneHandle) Close() error {
	return nil
}
