// Package repo — хранение в PostgreSQL (pgx/v5).
//
//   - ReportRepo — финальные отчёты run и исходы стадий; подключается
//     к report.Aggregator как получатель.
//   - ScheduleStateRepo — состояние расписаний между перезапусками runner.
//
// Migrate создаёт таблицы из встроенного schema.sql.
package repo
