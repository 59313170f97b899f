package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/runner"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultMaxParallel = 4
	defaultMaxHistory  = 100
)

// Journal — durable журнал runs и экземпляров (реализуется repo).
type Journal interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	SaveJob(ctx context.Context, inst *domain.JobInstance) error
}

// Notifier — получатель событий жизненного цикла (реализуется mq).
type Notifier interface {
	RunStarted(ctx context.Context, run *domain.Run) error
	JobFinished(ctx context.Context, inst *domain.JobInstance) error
	RunFinished(ctx context.Context, run *domain.Run) error
	ReleaseFinished(ctx context.Context, run *domain.Run) error
}

// Orchestrator управляет выполнением runs.
//
// Каждый run выполняется собственным циклом планирования: готовые
// экземпляры запускаются в горутинах (не больше MaxParallel на run),
// результаты возвращаются через канал, цикл применяет gating и
// запускает следующие экземпляры.
type Orchestrator struct {
	runner   *runner.Runner
	journal  Journal
	notifier Notifier
	store    artifact.Store
	metrics  *telemetry.Metrics

	maxParallel int
	maxHistory  int

	// activeRuns — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState

	// history — завершённые runs, от старых к новым
	history []*RunState

	mu sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Runner — Stage Executor (обязательно).
	Runner *runner.Runner

	// Journal — журнал runs (опционально).
	Journal Journal

	// Notifier — события жизненного цикла (опционально).
	Notifier Notifier

	// Store — Artifact Store. Если задан, артефакты run удаляются,
	// когда run вытесняется из истории.
	Store artifact.Store

	Metrics *telemetry.Metrics

	// MaxParallel — максимум одновременно выполняемых экземпляров на run (default: 4).
	MaxParallel int

	// MaxHistory — сколько завершённых runs хранить в памяти (default: 100).
	MaxHistory int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := cfg.Runner
	if r == nil {
		r = runner.New(runner.Config{Logger: logger})
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		runner:      r,
		journal:     cfg.Journal,
		notifier:    cfg.Notifier,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		maxParallel: maxParallel,
		maxHistory:  maxHistory,
		activeRuns:  make(map[uuid.UUID]*RunState),
		logger:      logger,
		baseCtx:     ctx,
		cancelFunc:  cancel,
	}
}

// Start привязывает фоновые runs (Submit) к ctx.
// Отмена ctx отменяет все фоновые runs. Вызывается до первого Submit.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	o.mu.Lock()
	o.baseCtx, o.cancelFunc = context.WithCancel(ctx)
	o.mu.Unlock()

	o.logger.Info("orchestrator started", "max_parallel", o.maxParallel)
	return nil
}

// Stop отменяет активные runs и ждёт их финализации.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	o.mu.RLock()
	cancel := o.cancelFunc
	o.mu.RUnlock()
	cancel()

	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "active_runs", o.ActiveRunsCount())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Submit валидирует pipeline, создаёт run и запускает его в фоне.
// Возвращает снимок run в статусе PENDING.
//
// Ошибки валидации (включая цикл в графе) возвращаются до создания
// каких-либо экземпляров.
func (o *Orchestrator) Submit(ctx context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error) {
	o.mu.RLock()
	base := o.baseCtx
	o.mu.RUnlock()

	state, err := o.prepare(ctx, base, spec, trigger)
	if err != nil {
		return nil, err
	}
	snapshot := state.Snapshot()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(state)
	}()

	return snapshot, nil
}

// Execute выполняет pipeline синхронно и возвращает итоговый run.
//
// Отмена ctx отменяет run: его статус будет CANCELLED. Ошибка
// возвращается только если run не удалось создать.
func (o *Orchestrator) Execute(ctx context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error) {
	state, err := o.prepare(ctx, ctx, spec, trigger)
	if err != nil {
		return nil, err
	}

	o.wg.Add(1)
	defer o.wg.Done()
	o.execute(state)

	return state.Snapshot(), nil
}

// Wait ждёт завершения run.
func (o *Orchestrator) Wait(ctx context.Context, runID uuid.UUID) (*domain.Run, error) {
	state := o.findRun(runID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	select {
	case <-state.Done():
		return state.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel отменяет выполняющийся run.
//
// Отмена кооперативная: новые экземпляры не запускаются, QUEUED
// становятся SKIPPED, выполняющиеся получают отменённый контекст.
func (o *Orchestrator) Cancel(runID uuid.UUID) error {
	if state := o.getActiveRun(runID); state != nil {
		o.logger.Info("cancelling run", "run_id", runID)
		state.cancel()
		return nil
	}
	if o.findRun(runID) != nil {
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}
	return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// Get возвращает снимок run.
func (o *Orchestrator) Get(runID uuid.UUID) (*domain.Run, error) {
	state := o.findRun(runID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state.Snapshot(), nil
}

// Jobs возвращает экземпляры run в топологическом порядке.
func (o *Orchestrator) Jobs(runID uuid.UUID) ([]domain.JobInstance, error) {
	state := o.findRun(runID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state.Jobs(), nil
}

// List возвращает снимки всех известных runs, новые первыми.
func (o *Orchestrator) List() []domain.Run {
	o.mu.RLock()
	states := make([]*RunState, 0, len(o.activeRuns)+len(o.history))
	for _, s := range o.activeRuns {
		states = append(states, s)
	}
	states = append(states, o.history...)
	o.mu.RUnlock()

	out := make([]domain.Run, 0, len(states))
	for _, s := range states {
		out = append(out, *s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// prepare валидирует pipeline, раскрывает матрицы и регистрирует run.
func (o *Orchestrator) prepare(ctx, parent context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*RunState, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, engine.ErrEmptyPipeline)
	}

	engine.Normalize(spec)
	if err := engine.ValidateWith(spec, o.runner.Registry().Has); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}

	dag, err := engine.BuildDAG(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}

	run := domain.NewRun(spec.Name, trigger)
	instances, err := engine.ExpandAll(run.ID, dag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}

	state := NewRunState(run, spec, dag, instances)
	state.ctx, state.cancel = context.WithCancel(parent)

	if err := o.addActiveRun(state); err != nil {
		state.cancel()
		return nil, err
	}

	if err := o.createInJournal(ctx, state); err != nil {
		o.removeActiveRun(run.ID)
		state.cancel()
		return nil, err
	}

	o.logger.Info("run submitted",
		"run_id", run.ID,
		"pipeline", run.Pipeline,
		"ref", trigger.Ref,
		"jobs", dag.Size(),
		"instances", len(instances),
	)
	return state, nil
}

// execute — цикл планирования одного run.
func (o *Orchestrator) execute(state *RunState) {
	ctx := state.ctx
	defer state.cancel()

	logger := telemetry.WithRunID(o.logger, state.RunID().String())

	state.Update(func(run *domain.Run) { run.MarkRunning() })
	o.onRunStarted(ctx, state)

	sem := semaphore.NewWeighted(int64(o.maxParallel))
	results := make(chan *domain.JobInstance, len(state.instances))
	running := 0
	cancelled := false

	for {
		if ctx.Err() == nil {
			running += o.dispatch(ctx, state, sem, results)
		} else if !cancelled {
			cancelled = true
			logger.Info("run cancelled, skipping queued instances", "running", running)
			o.onJobsSkipped(ctx, state, state.SkipQueued("run cancelled"))
		}

		if running == 0 {
			// Ни одного готового экземпляра и ничего не выполняется
			if state.HasQueued() {
				o.onJobsSkipped(ctx, state, state.SkipQueued("unreachable"))
			}
			break
		}

		var cancelCh <-chan struct{}
		if !cancelled {
			cancelCh = ctx.Done()
		}

		select {
		case inst := <-results:
			running--
			o.onJobFinished(ctx, state, inst)
		case <-cancelCh:
		}
	}

	o.finalize(ctx, state, cancelled, logger)
}

// dispatch запускает готовые экземпляры, пока есть свободные слоты.
// Возвращает количество запущенных.
func (o *Orchestrator) dispatch(ctx context.Context, state *RunState, sem *semaphore.Weighted, results chan<- *domain.JobInstance) int {
	started := 0
	for _, id := range state.Ready() {
		if !sem.TryAcquire(1) {
			break
		}

		work, upstream := state.Dispatch(id)
		started++

		go func() {
			req := &runner.InstanceRequest{
				Instance: work,
				Trigger:  state.Run.Trigger,
				Upstream: upstream,
			}
			// Ошибка уже отражена в статусе экземпляра
			_ = o.runner.RunInstance(ctx, req)

			sem.Release(1)
			results <- work
		}()
	}
	return started
}

// finalize выставляет итоговый статус run.
func (o *Orchestrator) finalize(ctx context.Context, state *RunState, cancelled bool, logger *slog.Logger) {
	unsatisfied := state.Unsatisfied()

	state.Update(func(run *domain.Run) {
		switch {
		case cancelled:
			run.MarkCancelled()
		case len(unsatisfied) > 0:
			run.MarkFailed(fmt.Sprintf("jobs not satisfied: %s", strings.Join(unsatisfied, ", ")))
		default:
			run.MarkSucceeded()
		}
	})

	snapshot := state.Snapshot()
	logger.Info("run finished",
		"status", snapshot.Status,
		"duration", snapshot.Duration(),
		"stats", state.Stats(),
	)

	o.onRunFinished(ctx, state)

	o.archive(state)
	close(state.done)
}

// archive переносит run в историю и вытесняет старые.
func (o *Orchestrator) archive(state *RunState) {
	o.mu.Lock()
	delete(o.activeRuns, state.RunID())
	o.history = append(o.history, state)

	var evicted []*RunState
	if over := len(o.history) - o.maxHistory; over > 0 {
		evicted = append(evicted, o.history[:over]...)
		o.history = append([]*RunState(nil), o.history[over:]...)
	}
	o.mu.Unlock()

	if o.store == nil {
		return
	}
	for _, s := range evicted {
		n, err := o.store.DeleteRun(context.Background(), s.RunID())
		if err != nil {
			o.logger.Error("failed to delete run artifacts", "run_id", s.RunID(), "error", err)
			continue
		}
		o.logger.Debug("run evicted from history", "run_id", s.RunID(), "artifacts_deleted", n)
	}
}

// findRun ищет run среди активных и в истории.
func (o *Orchestrator) findRun(runID uuid.UUID) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if s, ok := o.activeRuns[runID]; ok {
		return s
	}
	for _, s := range o.history {
		if s.RunID() == runID {
			return s
		}
	}
	return nil
}

// getActiveRun возвращает активный RunState.
func (o *Orchestrator) getActiveRun(runID uuid.UUID) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeRuns[runID]
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[state.RunID()]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[state.RunID()] = state
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// GetActiveRunStats возвращает статистику по активному run.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	state := o.getActiveRun(runID)
	if state == nil {
		return RunStats{}, false
	}
	return state.Stats(), true
}
