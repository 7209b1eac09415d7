// Package mq связывает stagehand с RabbitMQ.
//
// Две роли:
//
//   - Входящие запросы на запуск (runs.requested). Consumer передаёт
//     каждое сообщение обработчику; RunRequestHandler разбирает RunRequest
//     и отдаёт его runner.
//   - Исходящие отчёты (stagehand.reports, ключ finalized). ReportNotifier
//     подключается к report.Aggregator и публикует каждый финальный отчёт.
//
// Соединение переподключается само; Consumer после переподключения
// подписывается заново. Сообщения, которые нельзя обработать
// (битый JSON, пустой pipeline), уходят в dlq.runs без повторов.
//
// Обменники:
//   - stagehand.runs    — запросы на запуск
//   - stagehand.reports — финальные отчёты
//   - stagehand.dlq     — dead letter queue
package mq
