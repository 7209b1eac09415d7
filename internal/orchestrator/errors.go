package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidRequest — запрос без pipeline или с путём вне каталога pipeline.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrPipelineLoad — файл pipeline не читается или не разбирается.
	ErrPipelineLoad = errors.New("pipeline load failed")

	// ErrInvalidPipeline — pipeline не компилируется.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrDuplicateRun — run с таким ключом идемпотентности уже завершён.
	ErrDuplicateRun = errors.New("duplicate run")

	// ErrRunAlreadyActive — run с таким ключом идемпотентности выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)

// permanent проверяет, что повтор запроса не изменит результат.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrPipelineLoad) ||
		errors.Is(err, ErrInvalidPipeline)
}
