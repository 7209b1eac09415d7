// Package cli реализует инструмент командной строки stagehand.
//
// # Обзор
//
// Команды делятся на две группы:
//   - локальные: компилируют и выполняют pipeline в процессе CLI
//     с реестром встроенных шагов (run, validate, fingerprint, steps)
//   - удалённые: работают с API stagehand-runner через HTTP
//     (report, dispatch, active, schedule)
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API stagehand-runner. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Не импортирует internal/api.
//
//	client := cli.NewClient("http://localhost:8080")
//	reports, err := client.ListReports(cli.ListReportsOpts{Status: "FAILURE"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи — в stderr.
// Это позволяет использовать pipe: stagehand run deploy.yaml --json | jq .status
//
// ## Commands
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей registryFn или clientFn и outputFn — замыкания для
// ленивого создания зависимостей после парсинга PersistentFlags.
//
// run возвращает ErrRunNotSuccessful, если итоговый статус не SUCCESS.
package cli
