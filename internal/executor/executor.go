package executor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/report"
	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultWorkers = 4
	DefaultTimeout = 10 * time.Minute
)

// Config — конфигурация Executor.
type Config struct {
	// Workers — размер пула для дочерних стадий parallel групп.
	Workers int

	// DefaultTimeout — дедлайн вызова шага, если стадия его не задаёт.
	DefaultTimeout time.Duration

	// Aggregator — сборщик отчёта. По умолчанию без получателей.
	Aggregator *report.Aggregator

	// Logger — логгер.
	Logger *slog.Logger
}

// Executor выполняет скомпилированные pipeline.
//
// Обход в глубину: для каждой стадии guard → вызов шага → дочерние стадии.
// Последовательные стадии выполняются на вызывающей горутине,
// дочерние стадии parallel групп — в пуле фиксированного размера.
// Если свободного слота нет, родитель выполняет стадию сам, поэтому
// вложенные parallel группы не блокируют друг друга.
//
// Один Executor можно использовать для многих run одновременно;
// пул общий.
type Executor struct {
	pool           *semaphore.Weighted
	workers        int
	defaultTimeout time.Duration
	aggregator     *report.Aggregator
	logger         *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	aggregator := cfg.Aggregator
	if aggregator == nil {
		aggregator = report.NewAggregator(report.Config{Logger: logger})
	}

	return &Executor{
		pool:           semaphore.NewWeighted(int64(cfg.Workers)),
		workers:        cfg.Workers,
		defaultTimeout: cfg.DefaultTimeout,
		aggregator:     aggregator,
		logger:         logger,
	}
}

// Workers возвращает размер пула.
func (e *Executor) Workers() int {
	return e.workers
}

// RunOptions — дополнительные параметры run.
type RunOptions struct {
	// IdempotencyKey — ключ триггера, попадает в отчёт.
	IdempotencyKey string
}

// Execute выполняет pipeline против начального контекста.
//
// Всегда возвращает отчёт с определённым статусом: ошибки шагов,
// таймауты и отмена ctx становятся данными отчёта.
// Паникует только на нарушениях инвариантов графа (nil pipeline,
// неизвестный тип стадии).
func (e *Executor) Execute(ctx context.Context, p *engine.Pipeline, rc *runctx.Context) *domain.RunReport {
	return e.Run(ctx, p, rc, RunOptions{})
}

// Run — Execute с дополнительными параметрами.
func (e *Executor) Run(ctx context.Context, p *engine.Pipeline, rc *runctx.Context, opts RunOptions) *domain.RunReport {
	if p == nil || p.Root == nil {
		panic("executor: nil pipeline")
	}
	if rc == nil {
		panic("executor: nil execution context")
	}

	logger := telemetry.WithPipeline(telemetry.WithRunID(e.logger, rc.RunID().String()), p.Name)
	logger.Info("run started",
		"fingerprint", p.Fingerprint(),
		"branch", rc.Branch(),
		"stages", p.Len(),
	)

	w := &walk{executor: e, logger: logger}

	startedAt := time.Now()
	root := w.runNode(ctx, p.Root, rc)
	finishedAt := time.Now()

	meta := report.Meta{
		RunID:          rc.RunID(),
		Pipeline:       p.Name,
		Fingerprint:    p.Fingerprint(),
		Branch:         rc.Branch(),
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		IdempotencyKey: opts.IdempotencyKey,
	}

	// Получатели отчёта должны отработать и после отмены run.
	notifyCtx := telemetry.WithLogger(context.WithoutCancel(ctx), logger)
	return e.aggregator.Complete(notifyCtx, meta, root, w.interrupted.Load())
}
