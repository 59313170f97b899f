package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobInstance — конкретное выполнение JobTemplate для одного значения матрицы.
//
// Экземпляры изолированы: у каждого своя копия шагов и свои результаты.
// Общаются между собой экземпляры только через Artifact Store.
type JobInstance struct {
	// ID — уникальный идентификатор экземпляра.
	ID uuid.UUID `json:"id"`

	// RunID — run, которому принадлежит экземпляр.
	RunID uuid.UUID `json:"run_id"`

	// Template — имя родительского JobTemplate.
	Template string `json:"template"`

	// MatrixValue — значение оси матрицы. Пусто для job без матрицы.
	MatrixValue string `json:"matrix_value,omitempty"`

	// Status — текущий статус.
	Status JobStatus `json:"status"`

	// Steps — изолированная копия шагов шаблона.
	Steps []StepDef `json:"-"`

	// StepResults — результаты выполненных шагов в порядке объявления.
	StepResults []StepResult `json:"step_results,omitempty"`

	// Error — описание ошибки, если экземпляр FAILED.
	Error string `json:"error,omitempty"`

	// SkipReason — причина, если экземпляр SKIPPED.
	SkipReason string `json:"skip_reason,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Label возвращает метку экземпляра: значение матрицы,
// либо имя шаблона, если матрица пуста.
// Метка используется как первая часть ключа артефакта.
func (j *JobInstance) Label() string {
	if j.MatrixValue != "" {
		return j.MatrixValue
	}
	return j.Template
}

// MarkRunning переводит экземпляр в статус RUNNING.
func (j *JobInstance) MarkRunning() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkSucceeded переводит экземпляр в статус SUCCEEDED.
func (j *JobInstance) MarkSucceeded() {
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.FinishedAt = &now
}

// MarkFailed переводит экземпляр в статус FAILED.
func (j *JobInstance) MarkFailed(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.Error = err
}

// MarkSkipped переводит экземпляр в статус SKIPPED.
func (j *JobInstance) MarkSkipped(reason string) {
	now := time.Now()
	j.Status = JobStatusSkipped
	j.FinishedAt = &now
	j.SkipReason = reason
}

// Duration возвращает продолжительность выполнения экземпляра.
func (j *JobInstance) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// StepResult — итог выполнения одного шага.
type StepResult struct {
	StepID     string            `json:"step_id"`
	Action     string            `json:"action"`
	Status     StepStatus        `json:"status"`
	ExitCode   int               `json:"exit_code"`
	BestEffort bool              `json:"best_effort,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}
