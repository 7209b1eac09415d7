// Package api содержит HTTP API сервера stagehand-runner.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище отчётов, оркестратор, scheduler, реестр шагов)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - report_handler.go   — обработчики для /reports
//   - run_handler.go      — обработчики для /runs
//   - pipeline_handler.go — проверка pipeline и список шагов
//   - schedule_handler.go — обработчики для /schedules
//
// API только читает отчёты: отчёт создаётся Executor'ом по завершении run.
package api
