// Stagehand Runner — долгоживущий процесс выполнения pipeline.
//
// Runner:
//   - Получает запросы на запуск из RabbitMQ (runs.requested)
//   - Запускает pipeline по расписаниям (STAGEHAND_SCHEDULES)
//   - Сохраняет отчёты в PostgreSQL, публикует их в RabbitMQ
//     и архивирует в S3-совместимое хранилище
//   - Отдаёт /healthz, /metrics и API отчётов
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/stagehand/internal/api"
	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/executor"
	"github.com/shaiso/stagehand/internal/mq"
	"github.com/shaiso/stagehand/internal/objectstore"
	"github.com/shaiso/stagehand/internal/orchestrator"
	"github.com/shaiso/stagehand/internal/pipelinefile"
	"github.com/shaiso/stagehand/internal/report"
	"github.com/shaiso/stagehand/internal/repo"
	"github.com/shaiso/stagehand/internal/scheduler"
	"github.com/shaiso/stagehand/internal/steps"
	"github.com/shaiso/stagehand/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting stagehand-runner")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, os.Getenv("DB_URL"))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	reportRepo := repo.NewReportRepo(pool)
	notifiers := []report.Notifier{reportRepo, report.NewLogNotifier(logger)}

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.Config{
		URL:    os.Getenv("RABBITMQ_URL"),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, queue triggers disabled", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		notifiers = append(notifiers, mq.NewReportNotifier(mq.NewPublisher(mqConn, logger)))
	}

	// Object storage
	storeCfg := objectstore.Config{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    envOr("MINIO_BUCKET", "stagehand-reports"),
		Region:    os.Getenv("MINIO_REGION"),
		UseSSL:    envBool("MINIO_USE_SSL", false),
		Prefix:    os.Getenv("MINIO_PREFIX"),
	}
	if storeCfg.Enabled() {
		archive, err := objectstore.NewArchive(ctx, storeCfg)
		if err != nil {
			logger.Error("failed to init object storage", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, archive)
		logger.Info("report archive enabled", "endpoint", storeCfg.Endpoint, "bucket", storeCfg.Bucket)
	}

	// Executor + orchestrator
	registry := steps.DefaultRegistry()

	exec := executor.New(executor.Config{
		Workers: envInt("STAGEHAND_WORKERS", executor.DefaultWorkers),
		Aggregator: report.NewAggregator(report.Config{
			Notifiers: notifiers,
			Logger:    logger,
		}),
		Logger: logger,
	})

	var credentials map[string]string
	if path := os.Getenv("STAGEHAND_CREDENTIALS_FILE"); path != "" {
		credentials, err = pipelinefile.ReadCredentials(path)
		if err != nil {
			logger.Error("failed to read credentials", "error", err)
			os.Exit(1)
		}
		logger.Info("credential descriptors loaded", "count", len(credentials))
	}

	orch := orchestrator.New(orchestrator.Config{
		Executor:    exec,
		Resolver:    registry,
		Reports:     reportRepo,
		Conn:        mqConn,
		Consumers:   envInt("STAGEHAND_CONSUMERS", 1),
		PipelineDir: os.Getenv("STAGEHAND_PIPELINE_DIR"),
		Credentials: credentials,
		Logger:      logger,
	})
	orch.Start()

	// Scheduler
	sched, err := newScheduler(orch, repo.NewScheduleStateRepo(pool), logger)
	if err != nil {
		logger.Error("failed to init scheduler", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
			cancel()
		}
	}()

	// HTTP: /healthz + /metrics + API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s active=%d", time.Since(startTime).Round(time.Second), orch.ActiveRunsCount())
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		Reports:   reportRepo,
		Runs:      orch,
		Schedules: sched,
		Catalog:   registry,
		Logger:    logger,
	}).RegisterRoutes(mux)

	addr := ":" + envOr("RUNNER_PORT", "8080")
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Отменяем выполняющиеся run и ждём их отчётов
	orch.Stop()
	logger.Info("stagehand-runner stopped")
}

// newScheduler читает расписания из STAGEHAND_SCHEDULES.
// Без файла Scheduler работает с пустым списком.
func newScheduler(orch *orchestrator.Orchestrator, state scheduler.StateStore, logger *slog.Logger) (*scheduler.Scheduler, error) {
	var schedules []domain.Schedule
	if path := os.Getenv("STAGEHAND_SCHEDULES"); path != "" {
		loaded, err := pipelinefile.ReadSchedules(path)
		if err != nil {
			return nil, err
		}
		schedules = loaded
		logger.Info("schedules loaded", "path", path, "count", len(schedules))
	}

	return scheduler.New(scheduler.Config{
		Schedules: schedules,
		Trigger:   scheduler.TriggerFunc(orch.TriggerSchedule),
		State:     state,
		Logger:    logger,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
