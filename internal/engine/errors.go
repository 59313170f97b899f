package engine

import "errors"

// Ошибки валидации PipelineSpec.
var (
	// ErrEmptyPipeline — pipeline не содержит ни одной job.
	ErrEmptyPipeline = errors.New("pipeline has no jobs")

	// ErrEmptyJobName — job не имеет имени.
	ErrEmptyJobName = errors.New("job has empty name")

	// ErrDuplicateJob — несколько job с одинаковым именем.
	ErrDuplicateJob = errors.New("duplicate job name")

	// ErrEmptySteps — job не содержит шагов.
	ErrEmptySteps = errors.New("job has no steps")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID внутри job.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownAction — неизвестный тип действия.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidRetry — некорректная политика повторов.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrMissingDependency — job зависит от несуществующей job.
	ErrMissingDependency = errors.New("job depends on unknown job")

	// ErrSelfDependency — job зависит от самой себя.
	ErrSelfDependency = errors.New("job depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях (GraphCycle).
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// ErrInvalidMatrix — пустое или повторяющееся значение оси матрицы.
var ErrInvalidMatrix = errors.New("invalid matrix axis")

// ErrPipelineNotFound — в каталоге нет pipeline с таким именем.
var ErrPipelineNotFound = errors.New("pipeline not found")

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Job     string // имя job, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Job != "" {
		return "job " + e.Job + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(job, field, message string, err error) *ValidationError {
	return &ValidationError{
		Job:     job,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
