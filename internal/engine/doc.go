// Package engine содержит всё, что нужно для понимания структуры pipeline
// до начала выполнения.
//
// Включает:
//   - loader.go   — загрузка PipelineSpec из YAML
//   - parser.go   — нормализация и валидация PipelineSpec
//   - dag.go      — граф зависимостей между JobTemplate
//   - matrix.go   — развёртка шаблона по оси матрицы в JobInstance
//   - template.go — рендеринг параметров шагов ({{ .Matrix }})
//   - plan.go     — план выполнения для CLI и API
//
// Engine не выполняет шаги: это делают runner и orchestrator.
package engine
