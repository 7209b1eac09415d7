package engine

import (
	"errors"

	"github.com/shaiso/stagehand/internal/runctx"
)

// Ошибки структуры pipeline.
var (
	// ErrEmptyPipeline — pipeline не содержит стадий.
	ErrEmptyPipeline = errors.New("pipeline has no stages")

	// ErrEmptyStageID — стадия не имеет ID.
	ErrEmptyStageID = errors.New("stage has empty ID")

	// ErrDuplicateStageID — несколько стадий с одинаковым ID.
	ErrDuplicateStageID = errors.New("duplicate stage ID")

	// ErrUnknownKind — неизвестный тип стадии.
	ErrUnknownKind = errors.New("unknown stage kind")

	// ErrEmptyParallel — parallel стадия без дочерних стадий.
	ErrEmptyParallel = errors.New("parallel stage has no children")

	// ErrEmptyStage — стадия без шага и без дочерних стадий.
	ErrEmptyStage = errors.New("stage has neither step nor children")

	// ErrMissingGuard — conditional стадия без условия.
	ErrMissingGuard = errors.New("conditional stage has no guard")

	// ErrInvalidGuard — некорректный glob-шаблон ветки.
	ErrInvalidGuard = errors.New("invalid guard")
)

// Ошибки ссылок на шаги.
var (
	// ErrUnresolvedStep — шаг не найден в реестре при компиляции.
	ErrUnresolvedStep = errors.New("unresolved step")

	// ErrCapabilityDenied — шаг требует capability, не объявленную в permissions.
	ErrCapabilityDenied = errors.New("capability not permitted")

	// ErrInvalidParams — статические параметры не соответствуют схеме шага.
	ErrInvalidParams = errors.New("invalid step params")

	// ErrInvalidRetry — некорректная политика повторов.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidTimeout — некорректный таймаут.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// ErrTemplateParse — ошибка синтаксиса шаблона в параметрах или guard.
var ErrTemplateParse = runctx.ErrTemplateParse

// ValidationError — ошибка компиляции с контекстом.
type ValidationError struct {
	StageID string // ID стадии, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StageID != "" {
		return "stage " + e.StageID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stageID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StageID: stageID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
