// Package orchestrator принимает запросы на запуск pipeline
// и выполняет их через executor.
//
// Orchestrator отвечает за:
//   - Получение запросов из очереди runs.requested (RabbitMQ)
//   - Запуск по расписанию (TriggerSchedule) и из API (Dispatch)
//   - Чтение и компиляцию pipeline
//   - Дедупликацию по ключу идемпотентности: среди выполняющихся run
//     и среди сохранённых отчётов
//   - Учёт выполняющихся run и корректную остановку
//
// Сам обход графа, retry и таймауты — забота executor.
package orchestrator
