// Package executor выполняет скомпилированные pipeline.
//
// Правила обхода:
//   - guard вычисляется один раз до вызова шага и детей; false → всё
//     поддерево SKIPPED без единого вызова
//   - шаг стадии выполняется до дочерних стадий; его delta видят только потомки
//   - sequential: дети по порядку; после падения остальные ABORTED
//   - parallel: дети конкурентно в пуле, join barrier у родителя,
//     падение не отменяет соседей
//   - continue_on_error: падение стадии не прерывает соседей и не роняет
//     родителя (run всё равно FAILURE)
//
// Вызов шага: рендеринг параметров → проверка по схеме → попытки
// с дедлайном и backoff между ними. Исчерпание попыток даёт FAILURE,
// отмена ctx — ABORTED. Executor не падает из-за ошибок шагов.
package executor
