package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден ни среди активных, ни в истории.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidPipeline — pipeline не прошёл валидацию.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrRunAlreadyActive — run с таким ID уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunFinished — run уже завершён (для Cancel).
	ErrRunFinished = errors.New("run already finished")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
