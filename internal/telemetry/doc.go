// Package telemetry обеспечивает наблюдаемость.
//
// Включает:
//   - logging.go  — structured logging через slog
//   - metrics.go  — Prometheus метрики run'ов и item'ов (orchestrator.Observer)
//   - progress.go — построчный прогресс run в терминал
//
// Сервисы экспортируют метрики на /metrics endpoint,
// CLI может поднять его флагом --metrics-addr.
package telemetry
