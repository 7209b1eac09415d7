package report

import (
	"context"
	"log/slog"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/telemetry"
)

// Notifier — получатель финального отчёта (очередь, БД, архив, чат).
type Notifier interface {
	// Name возвращает имя получателя для логов и метрик.
	Name() string

	// Notify доставляет отчёт. Ошибка не влияет на отчёт.
	Notify(ctx context.Context, report *domain.RunReport) error
}

// Config — конфигурация Aggregator.
type Config struct {
	// Notifiers — получатели отчёта, вызываются по порядку.
	Notifiers []Notifier

	// Logger — логгер.
	Logger *slog.Logger
}

// Aggregator финализирует run и рассылает отчёт получателям.
type Aggregator struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewAggregator создаёт новый Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		notifiers: cfg.Notifiers,
		logger:    logger,
	}
}

// Complete финализирует отчёт, обновляет метрики и вызывает получателей.
// Ошибки получателей логируются; отчёт после Finalize не изменяется.
func (a *Aggregator) Complete(ctx context.Context, meta Meta, root *Outcome, cancelled bool) *domain.RunReport {
	report := Finalize(meta, root, cancelled)

	telemetry.RunsTotal.WithLabelValues(report.Status.String()).Inc()
	for _, stage := range report.Stages {
		telemetry.StageOutcomesTotal.WithLabelValues(stage.Status.String()).Inc()
	}

	logger := telemetry.WithRunID(a.logger, report.RunID.String())
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			telemetry.NotifyErrorsTotal.WithLabelValues(n.Name()).Inc()
			logger.Error("notify report",
				"notifier", n.Name(),
				"error", err,
			)
		}
	}

	return report
}

// LogNotifier пишет итог run в лог.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Name возвращает имя получателя.
func (n *LogNotifier) Name() string {
	return "log"
}

// Notify логирует отчёт.
func (n *LogNotifier) Notify(ctx context.Context, report *domain.RunReport) error {
	summary := report.Summary()
	level := slog.LevelInfo
	if report.Status != domain.StatusSuccess {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "run finished",
		"run_id", report.RunID,
		"pipeline", report.Pipeline,
		"status", report.Status,
		"duration", report.Duration(),
		"succeeded", summary[domain.StatusSuccess],
		"failed", summary[domain.StatusFailure],
		"skipped", summary[domain.StatusSkipped],
		"aborted", summary[domain.StatusAborted],
	)
	return nil
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc struct {
	NotifierName string
	Fn           func(ctx context.Context, report *domain.RunReport) error
}

// Name возвращает имя получателя.
func (f NotifierFunc) Name() string {
	return f.NotifierName
}

// Notify вызывает Fn.
func (f NotifierFunc) Notify(ctx context.Context, report *domain.RunReport) error {
	return f.Fn(ctx, report)
}
