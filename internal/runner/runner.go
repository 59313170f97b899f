package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultRetryDelay = time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Runner — Stage Executor: выполняет шаги одного экземпляра job.
//
// Runner не хранит состояния между экземплярами и может
// использоваться из нескольких горутин одновременно.
type Runner struct {
	registry   *Registry
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	workDir    string
	env        map[string]string
	retryDelay time.Duration
	maxDelay   time.Duration
}

// Config — конфигурация Runner.
type Config struct {
	// Registry — таблица действий (обязательно).
	Registry *Registry

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// WorkDir — если задан, каждый экземпляр получает свою
	// временную директорию внутри WorkDir.
	WorkDir string

	// Env — переменные, доступные в шаблонах параметров как {{ .Env.NAME }}.
	Env map[string]string

	// RetryDelay — базовая задержка retry, если политика её не задаёт (default: 1s).
	RetryDelay time.Duration

	// MaxDelay — верхняя граница задержки retry (default: 30s).
	MaxDelay time.Duration

	Logger *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	return &Runner{
		registry:   registry,
		metrics:    cfg.Metrics,
		logger:     logger,
		workDir:    cfg.WorkDir,
		env:        cfg.Env,
		retryDelay: retryDelay,
		maxDelay:   maxDelay,
	}
}

// Registry возвращает таблицу действий.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// InstanceRequest — задание на выполнение одного экземпляра.
type InstanceRequest struct {
	// Instance — экземпляр, принадлежащий вызывающей горутине.
	// Runner заполняет StepResults и финальный статус.
	Instance *domain.JobInstance

	Trigger domain.Trigger

	// Upstream — снимок экземпляров зависимостей.
	Upstream []domain.JobInstance
}

// RunInstance выполняет шаги экземпляра строго по порядку.
//
// Возвращает nil, если экземпляр SUCCEEDED, и *StepError, если
// обязательный шаг упал. Best-effort падения не влияют на результат.
func (r *Runner) RunInstance(ctx context.Context, req *InstanceRequest) error {
	inst := req.Instance
	logger := telemetry.WithJob(
		telemetry.WithRunID(r.logger, inst.RunID.String()),
		inst.Template, inst.Label(), inst.ID.String(),
	)

	if inst.StartedAt == nil {
		inst.MarkRunning()
	}

	ws, cleanup, err := r.newWorkspace(inst)
	if err != nil {
		inst.MarkFailed(err.Error())
		return err
	}
	defer cleanup()

	tctx := engine.NewContext(inst, req.Trigger)
	for k, v := range r.env {
		tctx.SetEnv(k, v)
	}
	inst.StepResults = make([]domain.StepResult, 0, len(inst.Steps))

	var failure *StepError
	for i := range inst.Steps {
		step := &inst.Steps[i]

		if failure != nil {
			inst.StepResults = append(inst.StepResults, domain.StepResult{
				StepID:     step.ID,
				Action:     step.Action,
				Status:     domain.StepStatusSkipped,
				BestEffort: step.BestEffort,
			})
			continue
		}

		stepLogger := telemetry.WithStep(logger, step.ID, step.Action)
		res, stepErr := r.runStep(ctx, req, step, tctx, ws, stepLogger)
		inst.StepResults = append(inst.StepResults, res)
		tctx.AddStepResult(step.ID, res.Outputs, string(res.Status))

		if res.Status == domain.StepStatusSucceeded {
			continue
		}

		if step.BestEffort {
			stepLogger.Warn("best-effort step failed, continuing",
				"exit_code", res.ExitCode,
				"error", res.Error,
			)
			continue
		}

		failure = &StepError{
			Job:      inst.Template,
			Label:    inst.Label(),
			StepID:   step.ID,
			Action:   step.Action,
			ExitCode: res.ExitCode,
			Err:      stepErr,
		}
	}

	if failure != nil {
		inst.MarkFailed(failure.Error())
		logger.Warn("job instance failed",
			"step_id", failure.StepID,
			"exit_code", failure.ExitCode,
			"error", failure.Unwrap(),
		)
		return failure
	}

	inst.MarkSucceeded()
	logger.Info("job instance succeeded", "duration", inst.Duration())
	return nil
}

// newWorkspace создаёт workspace экземпляра.
func (r *Runner) newWorkspace(inst *domain.JobInstance) (*Workspace, func(), error) {
	if r.workDir == "" {
		return NewWorkspace(""), func() {}, nil
	}

	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.workDir, inst.Template+"-"+inst.Label()+"-")
	if err != nil {
		return nil, nil, fmt.Errorf("create workspace: %w", err)
	}
	return NewWorkspace(dir), func() { os.RemoveAll(dir) }, nil
}

// runStep рендерит параметры и выполняет шаг с retry и таймаутом.
// Ошибка возвращается вместе с результатом для StepError.
func (r *Runner) runStep(
	ctx context.Context,
	req *InstanceRequest,
	step *domain.StepDef,
	tctx *engine.Context,
	ws *Workspace,
	logger *slog.Logger,
) (domain.StepResult, error) {
	start := time.Now()
	res := domain.StepResult{
		StepID:     step.ID,
		Action:     step.Action,
		BestEffort: step.BestEffort,
		Outputs:    map[string]string{},
	}

	fail := func(code int, err error) (domain.StepResult, error) {
		res.Status = domain.StepStatusFailed
		res.ExitCode = code
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		r.metrics.ObserveStep(step.Action, time.Since(start))
		return res, err
	}

	params, err := engine.RenderParams(step.Params, tctx)
	if err != nil {
		return fail(ExitCodeNone, err)
	}

	action, err := r.registry.Get(step.Action)
	if err != nil {
		return fail(ExitCodeNone, err)
	}

	inst := req.Instance
	actionReq := &Request{
		RunID:      inst.RunID,
		Trigger:    req.Trigger,
		Job:        inst.Template,
		Label:      inst.Label(),
		InstanceID: inst.ID,
		StepID:     step.ID,
		Params:     params,
		Workspace:  ws,
		Upstream:   req.Upstream,
		Logger:     logger,
	}

	logger.Debug("step started")

	out, execErr := r.executeWithRetry(ctx, action, actionReq, step, &res, logger)

	if out != nil && out.Outputs != nil {
		res.Outputs = out.Outputs
	}

	switch {
	case execErr != nil:
		code := ExitCodeNone
		if out != nil && out.ExitCode != 0 {
			code = out.ExitCode
		}
		return fail(code, execErr)
	case out != nil && out.ExitCode != 0:
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("exited with code %d", out.ExitCode)
		}
		return fail(out.ExitCode, fmt.Errorf("%w: %s", ErrStepFailed, msg))
	}

	res.Status = domain.StepStatusSucceeded
	res.DurationMs = time.Since(start).Milliseconds()
	r.metrics.ObserveStep(step.Action, time.Since(start))

	logger.Debug("step succeeded", "duration_ms", res.DurationMs, "attempts", res.Attempts)
	return res, nil
}

// executeWithRetry выполняет действие согласно RetryPolicy шага.
func (r *Runner) executeWithRetry(
	ctx context.Context,
	action Action,
	req *Request,
	step *domain.StepDef,
	res *domain.StepResult,
	logger *slog.Logger,
) (*Result, error) {
	maxAttempts := 1
	if step.Retry != nil && step.Retry.MaxAttempts > 0 {
		maxAttempts = step.Retry.MaxAttempts
	}

	var lastResult *Result
	var lastErr error

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		lastResult, lastErr = r.executeOnce(ctx, action, req, step)

		// Успех — нет ни инфраструктурной, ни логической ошибки
		if lastErr == nil && (lastResult == nil || lastResult.ExitCode == 0) {
			return lastResult, nil
		}

		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		delay := r.calculateBackoff(attempt, step.Retry)

		logger.Debug("retrying step",
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastResult, lastErr
		}
	}

	return lastResult, lastErr
}

// executeOnce выполняет одну попытку с таймаутом шага.
func (r *Runner) executeOnce(ctx context.Context, action Action, req *Request, step *domain.StepDef) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if step.TimeoutSec <= 0 {
		return action.Execute(ctx, req)
	}

	timeout := time.Duration(step.TimeoutSec) * time.Second
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := action.Execute(stepCtx, req)
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, fmt.Errorf("%w after %s", ErrStepTimeout, timeout)
	}
	return out, err
}

// calculateBackoff вычисляет задержку перед retry.
func (r *Runner) calculateBackoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	initialDelay := r.retryDelay
	if policy != nil && policy.DelaySec > 0 {
		initialDelay = time.Duration(policy.DelaySec) * time.Second
	}

	delay := initialDelay
	if policy != nil && policy.Backoff == "exponential" {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > r.maxDelay {
				break
			}
		}
	}

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}
