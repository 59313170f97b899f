package engine

import (
	"fmt"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Встроенные действия.
const (
	ActionShell          = "shell"
	ActionSetOutput      = "set-output"
	ActionPackage        = "package"
	ActionUploadArtifact = "upload-artifact"
	ActionRelease        = "release"
	ActionHTTP           = "http"
)

// Допустимые действия.
var validActions = map[string]bool{
	ActionShell:          true,
	ActionSetOutput:      true,
	ActionPackage:        true,
	ActionUploadArtifact: true,
	ActionRelease:        true,
	ActionHTTP:           true,
}

// Normalize заполняет значения по умолчанию.
//
// - Шагам без ID назначается "step-N" (N — позиция, начиная с 1)
// - Шагам без таймаута и retry достаются значения из Defaults
//
// Повторный вызов ничего не меняет.
func Normalize(spec *domain.PipelineSpec) {
	if spec == nil {
		return
	}
	for i := range spec.Jobs {
		job := &spec.Jobs[i]
		for j := range job.Steps {
			step := &job.Steps[j]
			if step.ID == "" {
				step.ID = fmt.Sprintf("step-%d", j+1)
			}
			if spec.Defaults == nil {
				continue
			}
			if step.TimeoutSec == 0 {
				step.TimeoutSec = spec.Defaults.TimeoutSec
			}
			if step.Retry == nil && spec.Defaults.Retry != nil {
				r := *spec.Defaults.Retry
				step.Retry = &r
			}
		}
	}
}

// Validate выполняет полную валидацию PipelineSpec.
//
// Проверяет:
// - Наличие job и шагов
// - Уникальность имён job и ID шагов внутри job
// - Корректность действий и политик повторов
// - Ось матрицы (без пустых и повторяющихся значений)
// - Валидность зависимостей и отсутствие циклов (делегируется DAG)
//
// Ожидает, что spec уже прошёл Normalize.
func Validate(spec *domain.PipelineSpec) error {
	return ValidateWith(spec, IsValidAction)
}

// ValidateWith работает как Validate, но набор допустимых действий
// задаёт known (например, Registry.Has исполнителя).
func ValidateWith(spec *domain.PipelineSpec, known func(action string) bool) error {
	if known == nil {
		known = IsValidAction
	}

	if spec == nil || len(spec.Jobs) == 0 {
		return ErrEmptyPipeline
	}

	names := make(map[string]bool, len(spec.Jobs))
	for i := range spec.Jobs {
		job := &spec.Jobs[i]

		if job.Name == "" {
			return NewValidationError("", "name",
				fmt.Sprintf("job %d has empty name", i), ErrEmptyJobName)
		}
		if names[job.Name] {
			return NewValidationError(job.Name, "name",
				fmt.Sprintf("duplicate job name: %s", job.Name), ErrDuplicateJob)
		}
		names[job.Name] = true

		if err := ValidateJob(job, known); err != nil {
			return err
		}
	}

	// Зависимости и циклы проверяет построение DAG
	if _, err := BuildDAG(spec); err != nil {
		return err
	}

	return nil
}

// ValidateJob валидирует один шаблон job без учёта остальных.
func ValidateJob(job *domain.JobTemplate, known func(action string) bool) error {
	if err := ValidateMatrix(job); err != nil {
		return err
	}

	for _, dep := range job.DependsOn {
		if dep == job.Name {
			return NewValidationError(job.Name, "depends_on",
				"job depends on itself", ErrSelfDependency)
		}
	}

	if len(job.Steps) == 0 {
		return NewValidationError(job.Name, "steps", "job has no steps", ErrEmptySteps)
	}

	stepIDs := make(map[string]bool, len(job.Steps))
	for i := range job.Steps {
		step := &job.Steps[i]

		if stepIDs[step.ID] {
			return NewValidationError(job.Name, "steps",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true

		if err := validateAction(job.Name, step, known); err != nil {
			return err
		}
		if err := validateRetry(job.Name, step); err != nil {
			return err
		}
	}

	return nil
}

// validateAction проверяет, что действие шага известно.
func validateAction(job string, step *domain.StepDef, known func(string) bool) error {
	if step.Action == "" {
		return NewValidationError(job, "action",
			fmt.Sprintf("step %s has empty action", step.ID), ErrUnknownAction)
	}
	if !known(step.Action) {
		return NewValidationError(job, "action",
			fmt.Sprintf("step %s: unknown action: %s", step.ID, step.Action), ErrUnknownAction)
	}
	return nil
}

// validateRetry проверяет политику повторов.
func validateRetry(job string, step *domain.StepDef) error {
	if step.TimeoutSec < 0 {
		return NewValidationError(job, "timeout_sec",
			fmt.Sprintf("step %s has negative timeout", step.ID), ErrInvalidRetry)
	}
	r := step.Retry
	if r == nil {
		return nil
	}
	if r.MaxAttempts < 1 {
		return NewValidationError(job, "retry",
			fmt.Sprintf("step %s: max_attempts must be >= 1", step.ID), ErrInvalidRetry)
	}
	switch r.Backoff {
	case "", "fixed", "exponential":
	default:
		return NewValidationError(job, "retry",
			fmt.Sprintf("step %s: unknown backoff: %s", step.ID, r.Backoff), ErrInvalidRetry)
	}
	if r.DelaySec < 0 {
		return NewValidationError(job, "retry",
			fmt.Sprintf("step %s: negative delay", step.ID), ErrInvalidRetry)
	}
	return nil
}

// IsValidAction проверяет, является ли действие допустимым.
func IsValidAction(action string) bool {
	return validActions[action]
}
