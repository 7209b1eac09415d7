package executor

import "errors"

// Ошибки выполнения. Попадают в отчёт как данные, не прерывают Executor.
var (
	// ErrStepExecution — ошибка внутри тела шага (включая panic).
	ErrStepExecution = errors.New("step execution failed")

	// ErrTimeout — вызов шага превысил дедлайн.
	ErrTimeout = errors.New("step invocation timed out")

	// ErrCancelled — run отменён до завершения стадии.
	ErrCancelled = errors.New("run cancelled")

	// ErrGuard — ошибка вычисления guard.
	ErrGuard = errors.New("guard evaluation failed")

	// ErrNotStarted — стадия не запускалась из-за падения предшественника.
	ErrNotStarted = errors.New("stage not started")
)
