// Package runctx содержит контекст выполнения run.
//
// Context — неизменяемый слоистый снимок: переменные, ветка,
// ID run и дескрипторы секретов. Шаги не изменяют контекст,
// а возвращают Delta; Executor создаёт дочерний слой через With
// и передаёт его потомкам стадии. Соседние стадии и предки
// delta не видят.
//
//	root := runctx.New(runctx.Options{Branch: "main", Vars: vars})
//	child := root.With(runctx.Delta{"image": "app:1.2"})
//	child.Get("image") // "app:1.2"
//	root.Get("image")  // nil, false
//
// Шаблоны (template.go) рендерятся против View:
//
//	{{ .Vars.image }}  {{ .Branch }}  {{ .RunID }}  {{ .Credentials.registry }}
package runctx
