package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Recital/internal/audio"
)

// Параметры piper по умолчанию.
const (
	defaultPiperBinary      = "piper"
	defaultPiperLengthScale = 1.2
	piperWarmupText         = "Ready."
	piperStopTimeout        = 5 * time.Second
)

// PiperAdapter запускает локальную модель Piper.
//
// Каждый Handle держит один процесс `piper --json-input`, модель
// загружается при старте процесса и переиспользуется для всех текстов.
//
// Параметры:
//
//	{
//	    "binary": "piper",
//	    "config": "en_US-amy-medium.onnx.json",
//	    "length_scale": 1.2,
//	    "speaker": 0,
//	    "warmup": true
//	}
type PiperAdapter struct {
	logger *slog.Logger
}

// NewPiperAdapter создаёт PiperAdapter.
func NewPiperAdapter() *PiperAdapter {
	return &PiperAdapter{logger: slog.Default()}
}

// Variant возвращает вариант движка.
func (a *PiperAdapter) Variant() Variant {
	return VariantPiper
}

// Capabilities возвращает возможности piper.
func (a *PiperAdapter) Capabilities() Capabilities {
	return Capabilities{Description: "local Piper model in a warm subprocess"}
}

// Init запускает процесс piper и ждёт, пока модель загрузится.
func (a *PiperAdapter) Init(ctx context.Context, cfg Config) (Handle, error) {
	if cfg.ModelRef == "" {
		return nil, ErrModelRequired
	}
	if _, err := os.Stat(cfg.ModelRef); err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.ModelRef, err)
	}

	binary, err := exec.LookPath(cfg.String("binary", defaultPiperBinary))
	if err != nil {
		return nil, fmt.Errorf("piper binary: %w", err)
	}

	lengthScale := cfg.Float("length_scale", defaultPiperLengthScale)
	if lengthScale <= 0 {
		return nil, fmt.Errorf("%w: length_scale %g", ErrInvalidParam, lengthScale)
	}

	dir, err := os.MkdirTemp("", "recital-piper-*")
	if err != nil {
		return nil, fmt.Errorf("create piper dir: %w", err)
	}

	args := []string{
		"--model", cfg.ModelRef,
		"--json-input",
		"--output_dir", dir,
		"--length_scale", strconv.FormatFloat(lengthScale, 'f', -1, 64),
	}
	if c := cfg.String("config", ""); c != "" {
		args = append(args, "--config", c)
	}
	if _, ok := cfg.Params["speaker"]; ok {
		args = append(args, "--speaker", strconv.Itoa(cfg.Int("speaker", 0)))
	}

	h := &PiperHandle{
		binary: binary,
		args:   args,
		dir:    dir,
		logger: a.logger,
	}
	if err := h.start(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	a.logger.Debug("piper started",
		"pid", h.cmd.Process.Pid,
		"model", cfg.ModelRef,
		"length_scale", lengthScale,
	)

	if cfg.Bool("warmup", true) {
		if _, err := h.Synthesize(ctx, piperWarmupText); err != nil {
			h.Close()
			return nil, fmt.Errorf("piper warmup: %w", err)
		}
	}

	return h, nil
}

// PiperHandle — запущенный процесс piper.
//
// Если процесс упал на одном тексте, следующий Synthesize перезапускает его
// с теми же аргументами. После отмены контекста Handle больше не используется.
type PiperHandle struct {
	binary string
	args   []string
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	dir    string
	seq    int

	// broken — процесс убит или закрыл stdout.
	broken error
	closed bool
}

// start запускает процесс piper.
func (h *PiperHandle) start() error {
	cmd := exec.Command(h.binary, h.args...)
	cmd.Stderr = &stderrLogger{logger: h.logger, variant: VariantPiper}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("piper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("piper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start piper: %w", err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = bufio.NewReader(stdout)
	h.broken = nil
	return nil
}

// restart добивает упавший процесс и запускает новый. Прогрев не нужен:
// модель загрузится на первом тексте.
func (h *PiperHandle) restart() error {
	prev := h.broken
	h.stdin.Close()
	_ = h.cmd.Process.Kill()
	_ = h.cmd.Wait()

	if err := h.start(); err != nil {
		h.broken = err
		return err
	}
	h.logger.Warn("piper restarted", "pid", h.cmd.Process.Pid, "cause", prev)
	return nil
}

// canRestart сообщает, что процесс упал сам, а не был убит отменой.
func (h *PiperHandle) canRestart() bool {
	return !errors.Is(h.broken, context.Canceled) && !errors.Is(h.broken, context.DeadlineExceeded)
}

type piperRequest struct {
	Text       string `json:"text"`
	OutputFile string `json:"output_file"`
}

type lineResult struct {
	line string
	err  error
}

// Synthesize отправляет текст в piper и читает получившийся WAV.
func (h *PiperHandle) Synthesize(ctx context.Context, text string) (audio.Audio, error) {
	if h.closed {
		return audio.Audio{}, ErrHandleClosed
	}
	if strings.TrimSpace(text) == "" {
		return audio.Audio{}, ErrEmptyText
	}
	if h.broken != nil {
		if !h.canRestart() {
			return audio.Audio{}, fmt.Errorf("%w: %v", ErrHandleClosed, h.broken)
		}
		if err := h.restart(); err != nil {
			return audio.Audio{}, fmt.Errorf("%w: restart: %v", ErrHandleClosed, err)
		}
	}

	h.seq++
	out := filepath.Join(h.dir, fmt.Sprintf("%06d.wav", h.seq))
	defer os.Remove(out)

	line, err := json.Marshal(piperRequest{Text: text, OutputFile: out})
	if err != nil {
		return audio.Audio{}, fmt.Errorf("marshal piper request: %w", err)
	}
	if _, err := h.stdin.Write(append(line, '\n')); err != nil {
		h.broken = err
		return audio.Audio{}, fmt.Errorf("%w: write request: %v", ErrBackend, err)
	}

	// piper печатает путь к файлу, когда синтез закончен
	ch := make(chan lineResult, 1)
	go func() {
		l, err := h.stdout.ReadString('\n')
		ch <- lineResult{line: l, err: err}
	}()

	var res lineResult
	select {
	case <-ctx.Done():
		h.broken = ctx.Err()
		h.cmd.Process.Kill()
		<-ch
		return audio.Audio{}, ctx.Err()
	case res = <-ch:
	}

	if res.err != nil {
		h.broken = res.err
		return audio.Audio{}, fmt.Errorf("%w: read piper output: %v", ErrBackend, res.err)
	}

	path := strings.TrimSpace(res.line)
	if path == "" {
		path = out
	}
	if path != out {
		defer os.Remove(path)
	}

	a, err := audio.ReadWAVFile(path)
	if err != nil {
		return audio.Audio{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return a, nil
}

// Close закрывает stdin, ждёт завершения процесса и удаляет временную директорию.
func (h *PiperHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer os.RemoveAll(h.dir)

	h.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil && h.broken == nil {
			return fmt.Errorf("piper exited: %w", err)
		}
		return nil
	case <-time.After(piperStopTimeout):
		h.cmd.Process.Kill()
		<-done
		return nil
	}
}

// stderrLogger пишет stderr процесса движка в debug лог.
type stderrLogger struct {
	logger  *slog.Logger
	variant Variant
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.Debug("engine stderr", "variant", w.variant, "line", line)
		}
	}
	return len(p), nil
}
