// Package report собирает итог run.
//
// Executor строит дерево Outcome; Finalize превращает его в
// domain.RunReport с определённым статусом, Aggregator рассылает
// отчёт получателям (Notifier): очередь, PostgreSQL, архив, лог.
package report
