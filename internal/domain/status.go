package domain

// Status — итог выполнения стадии или всего run.
//
//	SUCCESS — стадия (и её поддерево) выполнена успешно
//	FAILURE — шаг упал (после всех retry) или упал потомок
//	SKIPPED — guard не выполнился, поддерево не запускалось
//	ABORTED — стадия не запускалась или прервана отменой
type Status string

const (
	// StatusSuccess — успешное завершение.
	StatusSuccess Status = "SUCCESS"

	// StatusFailure — ошибка выполнения.
	StatusFailure Status = "FAILURE"

	// StatusSkipped — пропущено из-за guard.
	StatusSkipped Status = "SKIPPED"

	// StatusAborted — прервано (отмена run или падение предыдущей стадии).
	StatusAborted Status = "ABORTED"
)

// String возвращает строковое представление Status.
func (s Status) String() string {
	return string(s)
}

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusAborted:
		return true
	default:
		return false
	}
}

// Blocks возвращает true, если статус прерывает последовательную цепочку.
func (s Status) Blocks() bool {
	return s == StatusFailure || s == StatusAborted
}

// ParseStatus парсит строку в Status.
// Неизвестные значения превращаются в ABORTED: отчёт не может быть
// в неопределённом состоянии.
func ParseStatus(s string) Status {
	switch s {
	case "SUCCESS":
		return StatusSuccess
	case "FAILURE":
		return StatusFailure
	case "SKIPPED":
		return StatusSkipped
	default:
		return StatusAborted
	}
}
