package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/executor"
	"github.com/shaiso/stagehand/internal/mq"
	"github.com/shaiso/stagehand/internal/pipelinefile"
	"github.com/shaiso/stagehand/internal/repo"
	"github.com/shaiso/stagehand/internal/runctx"
)

const defaultConsumers = 1

// ReportLookup ищет завершённый run по ключу идемпотентности.
// Реализуется repo.ReportRepo; отсутствие run — repo.ErrNotFound.
type ReportLookup interface {
	GetByIdempotencyKey(ctx context.Context, pipeline, key string) (*domain.RunReport, error)
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Executor выполняет pipeline.
	Executor *executor.Executor

	// Resolver разрешает шаги при компиляции (обычно steps.Registry).
	Resolver engine.StepResolver

	// Reports — поиск завершённых run для дедупликации. Опционально.
	Reports ReportLookup

	// Conn — соединение с RabbitMQ для очереди runs.requested. Опционально.
	Conn *mq.Connection

	// Consumers — сколько запросов из очереди выполнять одновременно (default: 1).
	Consumers int

	// PipelineDir — каталог pipeline. Относительные пути запросов
	// разрешаются от него и не могут выходить за его пределы.
	PipelineDir string

	// Credentials — секреты, доступные шагам через контекст.
	Credentials map[string]string

	// Load читает pipeline. По умолчанию pipelinefile.ReadFile.
	Load func(path string) (*domain.PipelineSource, error)

	// Logger — логгер.
	Logger *slog.Logger
}

// Orchestrator принимает запросы на запуск и выполняет pipeline.
//
// Источники запросов: очередь runs.requested, scheduler и API.
// Для каждого запроса Orchestrator:
//   - читает и компилирует pipeline
//   - отсекает дубликаты по ключу идемпотентности
//   - выполняет pipeline через Executor
//
// Отчёт доставляется получателями Aggregator, подключёнными к Executor.
type Orchestrator struct {
	executor    *executor.Executor
	resolver    engine.StepResolver
	reports     ReportLookup
	conn        *mq.Connection
	consumers   int
	pipelineDir string
	credentials map[string]string
	load        func(path string) (*domain.PipelineSource, error)
	logger      *slog.Logger

	// activeRuns — выполняющиеся run (runID → info).
	activeRuns map[uuid.UUID]ActiveRun
	// activeKeys — ключи идемпотентности выполняющихся run.
	activeKeys map[string]uuid.UUID
	mu         sync.RWMutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Executor == nil || cfg.Resolver == nil {
		panic("orchestrator: executor and resolver are required")
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = defaultConsumers
	}
	if cfg.Load == nil {
		cfg.Load = pipelinefile.ReadFile
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		executor:    cfg.Executor,
		resolver:    cfg.Resolver,
		reports:     cfg.Reports,
		conn:        cfg.Conn,
		consumers:   cfg.Consumers,
		pipelineDir: cfg.PipelineDir,
		credentials: cfg.Credentials,
		load:        cfg.Load,
		logger:      logger.With("component", "orchestrator"),
		activeRuns:  make(map[uuid.UUID]ActiveRun),
		activeKeys:  make(map[string]uuid.UUID),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает consumers очереди runs.requested, если задано соединение.
func (o *Orchestrator) Start() {
	if o.conn == nil {
		o.logger.Info("orchestrator started without queue")
		return
	}

	handler := mq.RunRequestHandler(o.handleRunRequest)
	for i := 0; i < o.consumers; i++ {
		consumer := mq.NewConsumer(o.conn, mq.ConsumerConfig{
			Queue:    mq.QueueRunsRequested,
			Handler:  handler,
			Prefetch: 1,
			Logger:   o.logger,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := consumer.Run(o.ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("run consumer stopped", "error", err)
			}
		}()
	}

	o.logger.Info("orchestrator started", "consumers", o.consumers)
}

// Stop отменяет выполняющиеся run и ждёт их отчётов.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	active := len(o.activeRuns)
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator", "active_runs", active)
	o.cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// Submit выполняет run и возвращает отчёт.
//
// Если run с тем же ключом идемпотентности уже завершён или
// выполняется, возвращает ErrDuplicateRun или ErrRunAlreadyActive.
// Отмена ctx прерывает run; отчёт при этом всё равно возвращается.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*domain.RunReport, error) {
	pr, _, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// Stop тоже прерывает run.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	return o.execute(runCtx, pr), nil
}

// Dispatch проверяет запрос и запускает run в фоне.
// Возвращает ID нового run или, для дубликата, ID уже существующего
// run вместе с ErrDuplicateRun или ErrRunAlreadyActive.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (uuid.UUID, error) {
	pr, existingID, err := o.prepare(ctx, req)
	if err != nil {
		return existingID, err
	}

	go o.execute(o.ctx, pr)

	return pr.info.RunID, nil
}

// prepare читает, компилирует и регистрирует run.
// Для дубликатов возвращает ID существующего run.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*preparedRun, uuid.UUID, error) {
	path, err := o.resolvePath(req.Pipeline)
	if err != nil {
		return nil, uuid.Nil, err
	}

	src, err := o.load(path)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %w", ErrPipelineLoad, err)
	}

	p, err := engine.Compile(src, o.resolver)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %s: %w", ErrInvalidPipeline, path, err)
	}

	rc := runctx.New(runctx.Options{
		Branch:      req.Branch,
		Vars:        req.Vars,
		Credentials: o.credentials,
	})

	pr := &preparedRun{
		info: ActiveRun{
			RunID:          rc.RunID(),
			Pipeline:       p.Name,
			Fingerprint:    p.Fingerprint(),
			Branch:         req.Branch,
			Source:         req.Source,
			IdempotencyKey: req.IdempotencyKey,
			StartedAt:      time.Now(),
		},
		pipeline: p,
		rc:       rc,
	}
	if req.IdempotencyKey != "" {
		pr.dedupKey = p.Name + "/" + req.IdempotencyKey
	}

	if runID, err := o.register(pr); err != nil {
		return nil, runID, err
	}

	// Ключ уже занят этим run, поэтому завершённый run с тем же ключом
	// к этому моменту либо сохранил отчёт, либо не существует.
	if runID, err := o.checkFinished(ctx, pr); err != nil {
		o.unregister(pr)
		o.wg.Done()
		return nil, runID, err
	}
	return pr, uuid.Nil, nil
}

// checkFinished ищет сохранённый отчёт run с тем же ключом идемпотентности.
func (o *Orchestrator) checkFinished(ctx context.Context, pr *preparedRun) (uuid.UUID, error) {
	if pr.dedupKey == "" || o.reports == nil {
		return uuid.Nil, nil
	}

	existing, err := o.reports.GetByIdempotencyKey(ctx, pr.info.Pipeline, pr.info.IdempotencyKey)
	switch {
	case err == nil:
		return existing.RunID, fmt.Errorf("%w: %s already finished as %s",
			ErrDuplicateRun, pr.info.IdempotencyKey, existing.RunID)
	case errors.Is(err, repo.ErrNotFound):
		return uuid.Nil, nil
	default:
		return uuid.Nil, fmt.Errorf("check idempotency: %w", err)
	}
}

// execute выполняет зарегистрированный run.
func (o *Orchestrator) execute(ctx context.Context, pr *preparedRun) *domain.RunReport {
	defer o.wg.Done()
	defer o.unregister(pr)

	o.logger.Info("run accepted",
		"run_id", pr.info.RunID,
		"pipeline", pr.info.Pipeline,
		"source", pr.info.Source,
	)

	return o.executor.Run(ctx, pr.pipeline, pr.rc, executor.RunOptions{
		IdempotencyKey: pr.info.IdempotencyKey,
	})
}

// resolvePath разрешает путь pipeline относительно PipelineDir.
// Абсолютный путь допустим, только если он внутри PipelineDir.
func (o *Orchestrator) resolvePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: pipeline is required", ErrInvalidRequest)
	}
	if o.pipelineDir == "" {
		return p, nil
	}

	rel := p
	if filepath.IsAbs(p) {
		dir, err := filepath.Abs(o.pipelineDir)
		if err != nil {
			return "", fmt.Errorf("resolve pipeline dir: %w", err)
		}
		if rel, err = filepath.Rel(dir, p); err != nil {
			rel = p
		}
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: pipeline %q is outside %s", ErrInvalidRequest, p, o.pipelineDir)
	}
	return filepath.Join(o.pipelineDir, rel), nil
}

// register добавляет run в активные. После успешного register
// вызывается execute или, при отказе, unregister и wg.Done.
// Для ключа, занятого другим run, возвращает ID этого run.
func (o *Orchestrator) register(pr *preparedRun) (uuid.UUID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return uuid.Nil, ErrOrchestratorStopped
	}
	if pr.dedupKey != "" {
		if runID, exists := o.activeKeys[pr.dedupKey]; exists {
			return runID, fmt.Errorf("%w: %s is run %s", ErrRunAlreadyActive, pr.info.IdempotencyKey, runID)
		}
		o.activeKeys[pr.dedupKey] = pr.info.RunID
	}
	o.activeRuns[pr.info.RunID] = pr.info
	o.wg.Add(1)
	return uuid.Nil, nil
}

// unregister удаляет run из активных.
func (o *Orchestrator) unregister(pr *preparedRun) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.activeRuns, pr.info.RunID)
	if pr.dedupKey != "" {
		delete(o.activeKeys, pr.dedupKey)
	}
}

// ActiveRuns возвращает выполняющиеся run, старые первыми.
func (o *Orchestrator) ActiveRuns() []ActiveRun {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runs := make([]ActiveRun, 0, len(o.activeRuns))
	for _, r := range o.activeRuns {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs
}

// ActiveRunsCount возвращает количество выполняющихся run.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}
