// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (stagehand_*)
//
// Runner экспортирует метрики на /metrics endpoint,
// CLI пишет логи в stderr.
package telemetry
