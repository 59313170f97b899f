package orchestrator

import (
	"context"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/release"
)

// Обработчики событий цикла планирования: журнал, события, метрики.
// Ошибки журнала и событий логируются и не влияют на выполнение run.
// Записи делаются без отмены, чтобы CANCELLED run тоже был сохранён.

// createInJournal сохраняет новый run и его экземпляры.
func (o *Orchestrator) createInJournal(ctx context.Context, state *RunState) error {
	if o.journal == nil {
		return nil
	}

	snapshot := state.Snapshot()
	if err := o.journal.CreateRun(ctx, snapshot); err != nil {
		return err
	}
	for i := range snapshot.Jobs {
		if err := o.journal.SaveJob(ctx, &snapshot.Jobs[i]); err != nil {
			return err
		}
	}
	return nil
}

// onRunStarted обрабатывает переход run в RUNNING.
func (o *Orchestrator) onRunStarted(ctx context.Context, state *RunState) {
	ctx = context.WithoutCancel(ctx)
	snapshot := state.Snapshot()

	if o.journal != nil {
		if err := o.journal.UpdateRun(ctx, snapshot); err != nil {
			o.logger.Error("failed to update run", "run_id", snapshot.ID, "error", err)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.RunStarted(ctx, snapshot); err != nil {
			o.logger.Warn("failed to publish run.started", "run_id", snapshot.ID, "error", err)
		}
	}
}

// onJobFinished применяет результат воркера.
func (o *Orchestrator) onJobFinished(ctx context.Context, state *RunState, inst *domain.JobInstance) {
	skipped := state.Complete(inst)

	if summary := release.SummaryFromResults(inst.StepResults); summary != nil {
		state.SetRelease(summary)
	}

	o.logger.Debug("job instance finished",
		"run_id", inst.RunID,
		"job", inst.Template,
		"label", inst.Label(),
		"status", inst.Status,
		"skipped", len(skipped),
	)

	o.recordJob(ctx, inst)
	o.onJobsSkipped(ctx, state, skipped)
}

// onJobsSkipped записывает пропущенные экземпляры.
func (o *Orchestrator) onJobsSkipped(ctx context.Context, state *RunState, skipped []domain.JobInstance) {
	for i := range skipped {
		o.logger.Info("job instance skipped",
			"run_id", state.RunID(),
			"job", skipped[i].Template,
			"label", skipped[i].Label(),
			"reason", skipped[i].SkipReason,
		)
		o.recordJob(ctx, &skipped[i])
	}
}

// recordJob сохраняет экземпляр, публикует событие и метрику.
func (o *Orchestrator) recordJob(ctx context.Context, inst *domain.JobInstance) {
	ctx = context.WithoutCancel(ctx)
	o.metrics.JobFinished(inst.Template, string(inst.Status))

	if o.journal != nil {
		if err := o.journal.SaveJob(ctx, inst); err != nil {
			o.logger.Error("failed to save job instance", "instance_id", inst.ID, "error", err)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.JobFinished(ctx, inst); err != nil {
			o.logger.Warn("failed to publish job.finished", "instance_id", inst.ID, "error", err)
		}
	}
}

// onRunFinished записывает итог run.
func (o *Orchestrator) onRunFinished(ctx context.Context, state *RunState) {
	ctx = context.WithoutCancel(ctx)
	snapshot := state.Snapshot()

	o.metrics.RunFinished(string(snapshot.Status))

	if o.journal != nil {
		if err := o.journal.UpdateRun(ctx, snapshot); err != nil {
			o.logger.Error("failed to update run", "run_id", snapshot.ID, "error", err)
		}
	}
	if o.notifier == nil {
		return
	}
	if err := o.notifier.RunFinished(ctx, snapshot); err != nil {
		o.logger.Warn("failed to publish run.finished", "run_id", snapshot.ID, "error", err)
	}
	if snapshot.Release != nil {
		if err := o.notifier.ReleaseFinished(ctx, snapshot); err != nil {
			o.logger.Warn("failed to publish release.finished", "run_id", snapshot.ID, "error", err)
		}
	}
}
