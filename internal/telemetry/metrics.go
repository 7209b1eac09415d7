package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты вызова шага для метрик.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"
)

var (
	// RunsTotal — количество завершённых run по итоговому статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "runs_total",
		Help:      "Finalized pipeline runs by status.",
	}, []string{"status"})

	// StageOutcomesTotal — исходы стадий по статусу.
	StageOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "stage_outcomes_total",
		Help:      "Stage outcomes by status.",
	}, []string{"status"})

	// StepInvocationsTotal — вызовы шагов (одна запись на попытку).
	StepInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "step_invocations_total",
		Help:      "Step invocation attempts by step and result.",
	}, []string{"step", "result"})

	// StepDuration — длительность попытки вызова шага.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stagehand",
		Name:      "step_duration_seconds",
		Help:      "Duration of step invocation attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"step"})

	// RetriesTotal — повторные попытки вызова шагов.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "retries_total",
		Help:      "Step invocation retries by step.",
	}, []string{"step"})

	// NotifyErrorsTotal — ошибки доставки отчётов.
	NotifyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "notify_errors_total",
		Help:      "Report notifier failures by notifier.",
	}, []string{"notifier"})

	// HTTPRequestsTotal — запросы к API по маршруту и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stagehand",
		Name:      "http_requests_total",
		Help:      "API requests by route pattern and status code.",
	}, []string{"route", "code"})
)
