package mq

import (
	"context"

	"github.com/shaiso/Shipyard/internal/domain"
)

// jsonPublisher — публикация JSON payload (реализуется Publisher).
type jsonPublisher interface {
	PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error
}

// Notifier публикует события жизненного цикла в shipyard.events.
// Реализует orchestrator.Notifier.
type Notifier struct {
	publisher jsonPublisher
}

// NewNotifier создаёт Notifier поверх Publisher.
func NewNotifier(publisher *Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// RunStarted публикует run.started.
func (n *Notifier) RunStarted(ctx context.Context, run *domain.Run) error {
	return n.publisher.PublishJSON(ctx, ExchangeEvents, RoutingKeyRunStarted, MessageTypeRunStarted, runPayload(run))
}

// RunFinished публикует run.finished.
func (n *Notifier) RunFinished(ctx context.Context, run *domain.Run) error {
	return n.publisher.PublishJSON(ctx, ExchangeEvents, RoutingKeyRunFinished, MessageTypeRunFinished, runPayload(run))
}

// JobFinished публикует job.finished.
func (n *Notifier) JobFinished(ctx context.Context, inst *domain.JobInstance) error {
	payload := JobEventPayload{
		RunID:      inst.RunID,
		InstanceID: inst.ID,
		Job:        inst.Template,
		Label:      inst.Label(),
		Status:     inst.Status,
		Error:      inst.Error,
		SkipReason: inst.SkipReason,
		DurationMs: inst.Duration().Milliseconds(),
	}
	return n.publisher.PublishJSON(ctx, ExchangeEvents, RoutingKeyJobFinished, MessageTypeJobFinished, payload)
}

// ReleaseFinished публикует release.finished. Ничего не делает, если
// Release Gate в run не выполнялся.
func (n *Notifier) ReleaseFinished(ctx context.Context, run *domain.Run) error {
	if run.Release == nil {
		return nil
	}
	payload := ReleaseEventPayload{
		RunID:  run.ID,
		State:  run.Release.State,
		Tag:    run.Release.Tag,
		Reason: run.Release.Reason,
	}
	return n.publisher.PublishJSON(ctx, ExchangeEvents, RoutingKeyReleaseFinished, MessageTypeReleaseFinished, payload)
}

func runPayload(run *domain.Run) RunEventPayload {
	return RunEventPayload{
		RunID:      run.ID,
		Pipeline:   run.Pipeline,
		Event:      run.Trigger.Event,
		Ref:        run.Trigger.Ref,
		Status:     run.Status,
		Error:      run.Error,
		DurationMs: run.Duration().Milliseconds(),
	}
}
