// Package runner содержит Stage Executor: последовательное выполнение
// шагов одного экземпляра job.
//
// Основные компоненты:
//   - Runner    — выполняет шаги экземпляра по порядку, с retry и таймаутом
//   - Registry  — таблица действий (action → Action)
//   - Workspace — локальное для экземпляра хранилище blob'ов
//
// Встроенные действия:
//   - shell           — команда через CommandRunner (по умолчанию sh -c)
//   - set-output      — превращает параметры в outputs
//   - package         — загружает файл или inline-контент в workspace
//   - upload-artifact — публикует blob из workspace в Artifact Store
//
// Действие release регистрируется отдельно из пакета release.
//
// Падение шага без best_effort останавливает экземпляр: оставшиеся шаги
// записываются как SKIPPED, экземпляр получает статус FAILED и StepError
// с ID шага и кодом выхода. Падение best-effort шага логируется как WARN.
package runner
