package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const maxStderr = 2048

// FFmpeg кодирует через внешний ffmpeg.
//
// Команда:
//
//	ffmpeg -y -hide_banner -loglevel error -i <in.wav> -codec:a libmp3lame -q:a 3 <out.mp3>
//
// ffmpeg пишет во временный файл рядом с целевым, потом файл
// переименовывается в целевой.
type FFmpeg struct {
	binary    string
	codec     string
	quality   int
	extension string
	extra     []string
}

// NewFFmpeg создаёт ffmpeg энкодер. Пустые поля получают значения по умолчанию.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	e := &FFmpeg{
		binary:    cfg.Binary,
		codec:     cfg.Codec,
		quality:   cfg.Quality,
		extension: normalizeExtension(cfg.Extension),
		extra:     cfg.ExtraArgs,
	}
	if e.binary == "" {
		e.binary = DefaultBinary
	}
	if e.codec == "" {
		e.codec = DefaultCodec
	}
	if e.extension == "" {
		e.extension = DefaultExtension
	}
	if e.quality < 0 {
		return nil, fmt.Errorf("%w: quality %d", ErrInvalidConfig, e.quality)
	}
	return e, nil
}

// Kind возвращает вид энкодера.
func (e *FFmpeg) Kind() string {
	return KindFFmpeg
}

// Extension возвращает расширение итогового файла.
func (e *FFmpeg) Extension() string {
	return e.extension
}

// Args возвращает аргументы ffmpeg для пары файлов.
func (e *FFmpeg) Args(in, out string) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-codec:a", e.codec,
		"-q:a", strconv.Itoa(e.quality),
	}
	args = append(args, e.extra...)
	return append(args, out)
}

// Encode запускает ffmpeg и проверяет код выхода.
func (e *FFmpeg) Encode(ctx context.Context, intermediatePath, targetPath string) error {
	defer os.Remove(intermediatePath)

	// временный файл с тем же расширением: ffmpeg выбирает формат по нему.
	// Имя уникально, чтобы не совпасть с итоговым файлом другого item'а.
	dir, base := filepath.Dir(targetPath), filepath.Base(targetPath)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, ext)+".partial-*"+ext)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	partial := tmp.Name()
	tmp.Close()
	defer os.Remove(partial)

	cmd := exec.CommandContext(ctx, e.binary, e.Args(intermediatePath, partial)...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: maxStderr}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%w: %v", ErrEncode, err)
		}
		return fmt.Errorf("%w: %v: %s", ErrEncode, err, msg)
	}

	if fi, err := os.Stat(partial); err != nil || fi.Size() == 0 {
		return fmt.Errorf("%w: ffmpeg produced no output", ErrEncode)
	}

	if err := os.Rename(partial, targetPath); err != nil {
		return fmt.Errorf("move encoded file: %w", err)
	}
	return nil
}

// limitedBuffer хранит только первые max байт.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}
