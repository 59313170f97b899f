package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Shipyard/internal/domain"
)

type published struct {
	exchange Exchange
	key      RoutingKey
	msgType  MessageType
	payload  any
}

type fakePublisher struct {
	sent []published
}

func (f *fakePublisher) PublishJSON(_ context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	f.sent = append(f.sent, published{exchange, routingKey, msgType, payload})
	return nil
}

func TestNotifier_RunEvents(t *testing.T) {
	fake := &fakePublisher{}
	n := &Notifier{publisher: fake}
	ctx := context.Background()

	run := domain.NewRun("shipyard", domain.Trigger{Event: domain.EventTag, Ref: "refs/tags/v1.2.0"})
	run.MarkRunning()
	require.NoError(t, n.RunStarted(ctx, run))

	run.MarkFailed("jobs not satisfied: build")
	require.NoError(t, n.RunFinished(ctx, run))

	require.Len(t, fake.sent, 2)
	assert.Equal(t, ExchangeEvents, fake.sent[0].exchange)
	assert.Equal(t, RoutingKeyRunStarted, fake.sent[0].key)
	assert.Equal(t, MessageTypeRunStarted, fake.sent[0].msgType)

	finished, ok := fake.sent[1].payload.(RunEventPayload)
	require.True(t, ok)
	assert.Equal(t, RoutingKeyRunFinished, fake.sent[1].key)
	assert.Equal(t, run.ID, finished.RunID)
	assert.Equal(t, domain.RunStatusFailed, finished.Status)
	assert.Equal(t, "jobs not satisfied: build", finished.Error)
	assert.Equal(t, "refs/tags/v1.2.0", finished.Ref)
}

func TestNotifier_JobFinished(t *testing.T) {
	fake := &fakePublisher{}
	n := &Notifier{publisher: fake}

	inst := &domain.JobInstance{
		ID:          uuid.New(),
		RunID:       uuid.New(),
		Template:    "build",
		MatrixValue: "linux",
	}
	inst.MarkSkipped("dependency lint not satisfied")
	require.NoError(t, n.JobFinished(context.Background(), inst))

	require.Len(t, fake.sent, 1)
	assert.Equal(t, RoutingKeyJobFinished, fake.sent[0].key)
	payload := fake.sent[0].payload.(JobEventPayload)
	assert.Equal(t, "build", payload.Job)
	assert.Equal(t, inst.Label(), payload.Label)
	assert.Equal(t, domain.JobStatusSkipped, payload.Status)
	assert.Equal(t, "dependency lint not satisfied", payload.SkipReason)
}

func TestNotifier_ReleaseFinished(t *testing.T) {
	fake := &fakePublisher{}
	n := &Notifier{publisher: fake}
	ctx := context.Background()

	run := domain.NewRun("shipyard", domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"})
	require.NoError(t, n.ReleaseFinished(ctx, run))
	assert.Empty(t, fake.sent, "no release, no event")

	run.Release = &domain.ReleaseSummary{State: domain.ReleaseStateFailed, Tag: "v1.0.0", Reason: "missing asset"}
	require.NoError(t, n.ReleaseFinished(ctx, run))
	require.Len(t, fake.sent, 1)

	payload := fake.sent[0].payload.(ReleaseEventPayload)
	assert.Equal(t, domain.ReleaseStateFailed, payload.State)
	assert.Equal(t, "missing asset", payload.Reason)
}

func TestParsePayload(t *testing.T) {
	body, err := json.Marshal(&Message{
		ID:   "m-1",
		Type: MessageTypeRunRequested,
		Payload: RunRequestPayload{
			Pipeline: "shipyard",
			Event:    domain.EventTag,
			Ref:      "refs/tags/v2.0.0",
		},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	// Так сообщение видит consumer: payload распарсен как map
	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, MessageTypeRunRequested, msg.Type)

	req, err := ParsePayload[RunRequestPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, "shipyard", req.Pipeline)
	assert.Equal(t, domain.EventTag, req.Event)
	assert.Equal(t, "refs/tags/v2.0.0", req.Ref)

	msg.Payload = "not an object"
	_, err = ParsePayload[RunRequestPayload](&msg)
	assert.Error(t, err)
}
