package mq

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

type fakePipelines map[string]*domain.PipelineSpec

func (f fakePipelines) Pipeline(name string) (*domain.PipelineSpec, error) {
	spec, ok := f[name]
	if !ok {
		return nil, errors.New("pipeline not found")
	}
	return spec, nil
}

type fakeSubmitter struct {
	triggers []domain.Trigger
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.triggers = append(f.triggers, trigger)
	return domain.NewRun(spec.Name, trigger), nil
}

func delivery(msgType MessageType, payload any) *Delivery {
	return &Delivery{Message: Message{ID: "m1", Type: msgType, Payload: payload}}
}

func TestRunRequestHandler(t *testing.T) {
	pipelines := fakePipelines{"shipyard": {Name: "shipyard"}}
	sub := &fakeSubmitter{}
	handle := NewRunRequestHandler(pipelines, sub, nil)
	ctx := context.Background()

	err := handle(ctx, delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "shipyard", Ref: "refs/tags/v2.0.0"}))
	require.NoError(t, err)
	err = handle(ctx, delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "shipyard", Event: domain.EventPullRequest, Ref: "refs/pull/3/head"}))
	require.NoError(t, err)

	require.Len(t, sub.triggers, 2)
	assert.Equal(t, domain.EventTag, sub.triggers[0].Event)
	assert.Equal(t, domain.EventPullRequest, sub.triggers[1].Event)
}

func TestRunRequestHandler_RejectsWithoutRequeue(t *testing.T) {
	sub := &fakeSubmitter{}
	handle := NewRunRequestHandler(fakePipelines{"shipyard": {Name: "shipyard"}}, sub, nil)
	ctx := context.Background()

	for _, d := range []*Delivery{
		delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "missing", Ref: "refs/heads/main"}),
		delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "shipyard", Event: "merge", Ref: "refs/heads/main"}),
		delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "shipyard"}),
		delivery(MessageTypeRunFinished, RunEventPayload{Pipeline: "shipyard"}),
	} {
		assert.NoError(t, handle(ctx, d))
	}
	assert.Empty(t, sub.triggers)
}

func TestRunRequestHandler_SubmitErrorRequeues(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("orchestrator is stopped")}
	handle := NewRunRequestHandler(fakePipelines{"shipyard": {Name: "shipyard"}}, sub, nil)

	err := handle(context.Background(), delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "shipyard", Ref: "refs/heads/main"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestrator is stopped")
}

func TestRunRequestHandler_UsesDeliveryLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer
	handle := NewRunRequestHandler(fakePipelines{}, &fakeSubmitter{}, slog.New(slog.NewTextHandler(&fallback, nil)))

	ctx := telemetry.WithLogger(context.Background(),
		slog.New(slog.NewTextHandler(&scoped, nil)).With("queue", "runs.requested"))

	err := handle(ctx, delivery(MessageTypeRunRequested, RunRequestPayload{Pipeline: "missing", Ref: "refs/heads/main"}))
	require.NoError(t, err)

	assert.Empty(t, fallback.String())
	assert.Contains(t, scoped.String(), "run request rejected")
	assert.Contains(t, scoped.String(), "queue=runs.requested")
}
