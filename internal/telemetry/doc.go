// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики run, job, шагов, артефактов и релизов
//
// Сервер экспортирует метрики на /metrics endpoint.
package telemetry
