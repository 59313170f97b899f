package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одно выполнение pipeline, запущенное внешним событием.
//
// Run создаётся когда:
// - Пользователь запускает pipeline через CLI или API
// - Приходит webhook от GitHub (push, pull_request)
// - Scheduler создаёт run по cron-расписанию
//
// Run владеет своими экземплярами job и своими артефактами.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя выполняемого pipeline.
	Pipeline string `json:"pipeline"`

	// Trigger — событие, запустившее run.
	Trigger Trigger `json:"trigger"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Jobs — снимок состояния всех экземпляров job.
	// Заполняется оркестратором по завершении run.
	Jobs []JobInstance `json:"jobs,omitempty"`

	// Release — итог Release Gate, если release job выполнялась.
	Release *ReleaseSummary `json:"release,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(pipeline string, trigger Trigger) *Run {
	return &Run{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Trigger:   trigger,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// ReleaseSummary — итог Release Gate, видимый на уровне run.
//
// SKIPPED отличается от FAILED: "релиз не нужен" не является ошибкой.
type ReleaseSummary struct {
	State  ReleaseState `json:"state"`
	Tag    string       `json:"tag,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// JobsByTemplate группирует экземпляры по имени шаблона.
func (r *Run) JobsByTemplate() map[string][]JobInstance {
	out := make(map[string][]JobInstance)
	for _, j := range r.Jobs {
		out[j.Template] = append(out[j.Template], j)
	}
	return out
}
