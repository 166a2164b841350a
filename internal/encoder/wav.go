package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// renameFunc подменяется в тестах, чтобы смоделировать EXDEV.
var renameFunc = os.Rename

// WAV оставляет промежуточный файл как артефакт.
type WAV struct{}

// NewWAV создаёт WAV энкодер.
func NewWAV() *WAV {
	return &WAV{}
}

// Kind возвращает вид энкодера.
func (e *WAV) Kind() string {
	return KindWAV
}

// Extension возвращает "wav".
func (e *WAV) Extension() string {
	return "wav"
}

// Encode перемещает промежуточный файл в целевой.
// Если файлы на разных файловых системах, файл копируется.
func (e *WAV) Encode(ctx context.Context, intermediatePath, targetPath string) error {
	defer os.Remove(intermediatePath)

	if err := ctx.Err(); err != nil {
		return err
	}

	err := renameFunc(intermediatePath, targetPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move wav: %w", err)
	}
	return copyFile(intermediatePath, targetPath)
}

// copyFile копирует src во временный файл рядом с dst и переименовывает его.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy wav: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("move wav: %w", err)
	}
	return nil
}
