// Package orchestrator управляет выполнением runs.
//
// Orchestrator отвечает за:
//   - Валидацию pipeline и построение DAG при submit (цикл отклоняет run
//     до создания экземпляров)
//   - Раскрытие матриц в экземпляры job
//   - Параллельный запуск готовых экземпляров с ограничением MaxParallel
//   - Gating зависимостей с учётом fail_fast
//   - Финализацию run (SUCCEEDED/FAILED/CANCELLED) и итог Release Gate
//
// Один цикл планирования на run владеет состоянием экземпляров;
// воркеры возвращают результаты через канал.
package orchestrator
