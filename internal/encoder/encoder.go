package encoder

import (
	"context"
	"fmt"
	"strings"
)

// Виды энкодеров.
const (
	KindFFmpeg = "ffmpeg"
	KindWAV    = "wav"
)

// Значения по умолчанию: mp3 через libmp3lame, VBR качество 3.
const (
	DefaultBinary    = "ffmpeg"
	DefaultCodec     = "libmp3lame"
	DefaultQuality   = 3
	DefaultExtension = "mp3"
)

// Encoder кодирует промежуточный WAV в итоговый файл.
type Encoder interface {
	// Kind возвращает вид энкодера.
	Kind() string

	// Extension возвращает расширение итогового файла без точки.
	Extension() string

	// Encode создаёт targetPath из intermediatePath.
	// intermediatePath удаляется в любом случае.
	Encode(ctx context.Context, intermediatePath, targetPath string) error
}

// Config — конфигурация энкодера.
type Config struct {
	Kind      string   `yaml:"kind" json:"kind"`
	Binary    string   `yaml:"binary" json:"binary,omitempty"`
	Codec     string   `yaml:"codec" json:"codec,omitempty"`
	Quality   int      `yaml:"quality" json:"quality,omitempty"`
	Extension string   `yaml:"extension" json:"extension,omitempty"`
	ExtraArgs []string `yaml:"extra_args" json:"extra_args,omitempty"`
}

// DefaultConfig возвращает конфигурацию ffmpeg → mp3.
func DefaultConfig() Config {
	return Config{
		Kind:      KindFFmpeg,
		Binary:    DefaultBinary,
		Codec:     DefaultCodec,
		Quality:   DefaultQuality,
		Extension: DefaultExtension,
	}
}

// New создаёт энкодер по конфигурации.
func New(cfg Config) (Encoder, error) {
	switch cfg.Kind {
	case KindFFmpeg, "":
		return NewFFmpeg(cfg)
	case KindWAV:
		return NewWAV(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func normalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.TrimSpace(ext), ".")
}
