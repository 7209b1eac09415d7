// Package steps содержит реестр версионированных шагов и встроенные шаги.
//
// # Registry
//
// Шаг идентифицируется парой (name, version). Версии — semver,
// реестр только дополняется:
//
//	r := steps.NewRegistry()
//	_, err := r.Register("deploy", "1.2.0", schema, body, steps.WithCapabilities("network"))
//	if errors.Is(err, steps.ErrDuplicateVersion) {
//	    // версия уже есть
//	}
//
//	step, err := r.Resolve("deploy", ">=1.0.0 <2.0.0") // наибольшая подходящая версия
//
// Resolve вызывается при компиляции pipeline (engine.Compile),
// поэтому "step not found" не возникает во время выполнения.
//
// # Body
//
// Все шаги вызываются одинаково:
//
//	Invoke(ctx, params, rc) (*Result, error)
//
// Шаг не изменяет контекст: переменные для потомков стадии
// возвращаются в Result.Delta. Retry и таймауты — забота Executor.
//
// # Schema
//
// Schema описывает параметры шага. Check используется при компиляции
// (неизвестные и обязательные параметры), Prepare — перед вызовом:
// заполняет default и проверяет типы через JSON Schema.
//
// # Встроенные шаги (DefaultRegistry)
//
//   - echo@1.0.0      — вывод сообщения
//   - shell@1.0.0     — запуск скрипта (capability exec)
//   - http@1.0.0      — HTTP запрос (capability network)
//   - delay@1.0.0     — пауза
//   - transform@1.0.0 — mappings → переменные контекста
//   - setvar@1.0.0    — литеральные значения → переменные контекста
package steps
