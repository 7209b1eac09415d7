// Package engine компилирует описание pipeline в дерево стадий.
//
// Включает:
//   - compile.go     — Compile: валидация и разрешение шагов
//   - pipeline.go    — Pipeline, Node, Invocation
//   - guard.go       — условия выполнения стадий
//   - fingerprint.go — отпечаток графа (CBOR + BLAKE3)
//
// Все шаги разрешаются в реестре при компиляции. Если хоть одна
// ссылка не разрешается, Compile возвращает ошибку и не возвращает
// частичный граф:
//
//	p, err := engine.Compile(src, steps.DefaultRegistry())
//	if errors.Is(err, engine.ErrUnresolvedStep) {
//	    // шаг или версия не зарегистрированы
//	}
//
// Граф — строгое дерево, поэтому циклы невозможны по построению.
// Pipeline не изменяется после компиляции и может выполняться
// многократно и конкурентно.
package engine
