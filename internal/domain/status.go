package domain

import "fmt"

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы одна обязательная job упала.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён извне.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — статус экземпляра job.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	   │             ↘ FAILED
//	   └→ SKIPPED (зависимость не удовлетворена или run отменён)
type JobStatus string

const (
	// JobStatusQueued — экземпляр ждёт своих зависимостей или свободного слота.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusRunning — экземпляр выполняется.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSucceeded — все обязательные шаги прошли.
	JobStatusSucceeded JobStatus = "SUCCEEDED"

	// JobStatusFailed — обязательный шаг упал.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusSkipped — экземпляр так и не был запущен.
	JobStatusSkipped JobStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// StepStatus — итог выполнения одного шага.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// EventKind — тип внешнего события, запустившего run.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
	EventTag         EventKind = "tag"
)

// ParseEventKind парсит строку в EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventPush, EventPullRequest, EventTag:
		return EventKind(s), nil
	default:
		return "", fmt.Errorf("unknown event kind %q (expected push, pull_request or tag)", s)
	}
}

// ReleaseState — состояние Release Gate.
//
// Жизненный цикл:
//
//	IDLE → EVALUATING → SKIPPED
//	                  ↘ DRAFTING → ATTACHING → PUBLISHED
//	                         ↘          ↘ FAILED
type ReleaseState string

const (
	ReleaseStateIdle       ReleaseState = "IDLE"
	ReleaseStateEvaluating ReleaseState = "EVALUATING"
	ReleaseStateSkipped    ReleaseState = "SKIPPED"
	ReleaseStateDrafting   ReleaseState = "DRAFTING"
	ReleaseStateAttaching  ReleaseState = "ATTACHING"
	ReleaseStatePublished  ReleaseState = "PUBLISHED"
	ReleaseStateFailed     ReleaseState = "FAILED"
)

// IsTerminal возвращает true для SKIPPED, PUBLISHED и FAILED.
func (s ReleaseState) IsTerminal() bool {
	switch s {
	case ReleaseStateSkipped, ReleaseStatePublished, ReleaseStateFailed:
		return true
	default:
		return false
	}
}
