package steps

import (
	"errors"
	"fmt"
)

// Ошибки реестра.
var (
	// ErrDuplicateVersion — шаг с таким именем и версией уже зарегистрирован.
	ErrDuplicateVersion = errors.New("step version already registered")

	// ErrStepNotFound — нет версии шага, удовлетворяющей ограничению.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidVersion — версия не соответствует semver.
	ErrInvalidVersion = errors.New("invalid step version")

	// ErrInvalidConstraint — некорректное ограничение версии.
	ErrInvalidConstraint = errors.New("invalid version constraint")

	// ErrInvalidSchema — некорректная схема параметров.
	ErrInvalidSchema = errors.New("invalid param schema")

	// ErrEmptyName — шаг без имени.
	ErrEmptyName = errors.New("step has empty name")
)

// Ошибки вызова шагов.
var (
	// ErrInvalidParams — параметры не соответствуют схеме шага.
	// Повторная попытка с теми же параметрами не поможет.
	ErrInvalidParams = errors.New("invalid step params")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// DuplicateVersionError — ошибка повторной регистрации (name, version).
type DuplicateVersionError struct {
	Name    string
	Version string
}

// Error реализует интерфейс error.
func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("step %s@%s already registered", e.Name, e.Version)
}

// Unwrap возвращает ErrDuplicateVersion.
func (e *DuplicateVersionError) Unwrap() error {
	return ErrDuplicateVersion
}

// ExitError — скрипт shell шага завершился с ненулевым кодом.
type ExitError struct {
	Code   int
	Stderr string
}

// Error реализует интерфейс error.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exit code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// HTTPError — HTTP шаг получил статус >= 400 при fail_on_status.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
