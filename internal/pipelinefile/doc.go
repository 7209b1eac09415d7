// Package pipelinefile загружает описания pipeline и расписаний с диска.
//
// Поддерживаются два формата:
//
//   - YAML (.yaml, .yml) — через gopkg.in/yaml.v3
//   - JSONC (.json, .jsonc) — JSON с комментариями и завершающими запятыми
//
// Неизвестные поля — ошибка: опечатка в "continue_on_error" не должна
// молча менять поведение pipeline.
//
// Пакет только разбирает файлы. Проверка графа — engine.Compile.
package pipelinefile
