package audio

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки аудио.
var (
	// ErrInvalidFormat — некорректные параметры Audio.
	ErrInvalidFormat = errors.New("invalid audio format")

	// ErrNotWAV — данные не являются RIFF/WAVE.
	ErrNotWAV = errors.New("not a RIFF/WAVE stream")

	// ErrUnsupportedWAV — WAV не в формате 16-bit PCM.
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// Audio — синтезированный звук: 16-bit PCM, каналы чередуются.
type Audio struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Validate проверяет параметры формата.
func (a Audio) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, a.SampleRate)
	}
	if a.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrInvalidFormat, a.Channels)
	}
	if len(a.Samples)%a.Channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrInvalidFormat, len(a.Samples), a.Channels)
	}
	return nil
}

// Frames возвращает количество фреймов (сэмплов на канал).
func (a Audio) Frames() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Duration возвращает длительность звука.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.Frames()) * time.Second / time.Duration(a.SampleRate)
}
