package runner

import (
	"errors"
	"fmt"
)

// Ошибки выполнения шагов.
var (
	// ErrUnknownAction — нет действия с таким именем в реестре.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidParams — отсутствует или некорректен параметр действия.
	ErrInvalidParams = errors.New("invalid action params")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepFailed — шаг завершился с ненулевым кодом.
	ErrStepFailed = errors.New("step failed")

	// ErrBlobNotFound — в workspace нет blob'а с таким именем.
	ErrBlobNotFound = errors.New("workspace blob not found")
)

// ExitCodeNone — код выхода для шагов, упавших без статуса процесса
// (ошибка рендеринга, неизвестное действие, инфраструктурная ошибка).
const ExitCodeNone = -1

// StepError — падение обязательного шага, остановившее экземпляр.
type StepError struct {
	Job      string
	Label    string
	StepID   string
	Action   string
	ExitCode int
	Err      error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("job %s [%s]: step %s (%s) failed with exit code %d: %v",
		e.Job, e.Label, e.StepID, e.Action, e.ExitCode, e.Unwrap())
}

// Unwrap возвращает базовую ошибку.
func (e *StepError) Unwrap() error {
	if e.Err == nil {
		return ErrStepFailed
	}
	return e.Err
}
