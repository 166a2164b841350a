package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel определяет уровень логирования из LOG_LEVEL.
// Возможные значения: DEBUG, INFO, WARN, ERROR (регистр не важен).
// По умолчанию: INFO
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger настраивает логгер сервиса: stdout, JSON.
// LOG_FORMAT=text включает человекочитаемый формат.
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stdout, os.Getenv("LOG_FORMAT"))
}

// SetupCLILogger настраивает логгер утилиты: stderr, text.
// stdout остаётся для отчёта и данных, LOG_FORMAT=json переключает формат.
func SetupCLILogger(w io.Writer) *slog.Logger {
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}
	return SetupLoggerTo(w, format)
}

// SetupLoggerTo создаёт логгер с выводом в w и делает его глобальным.
// Любой format, кроме "text", даёт JSON.
func SetupLoggerTo(w io.Writer, format string) *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithRunID добавляет run_id ко всем записям логгера.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithScheduleID добавляет schedule_id.
func WithScheduleID(logger *slog.Logger, scheduleID string) *slog.Logger {
	return logger.With("schedule_id", scheduleID)
}
