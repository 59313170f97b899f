package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Shipyard/internal/config"
	"github.com/shaiso/Shipyard/internal/domain"
)

type fakeSubmitter struct {
	triggers []domain.Trigger
	fail     error
}

func (f *fakeSubmitter) Submit(_ context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.triggers = append(f.triggers, trigger)
	return domain.NewRun(spec.Name, trigger), nil
}

type fakePipelines map[string]*domain.PipelineSpec

func (f fakePipelines) Pipeline(name string) (*domain.PipelineSpec, error) {
	spec, ok := f[name]
	if !ok {
		return nil, errors.New("pipeline not found")
	}
	return spec, nil
}

var start = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, sub *fakeSubmitter, schedules ...config.Schedule) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Schedules: schedules,
		Pipelines: fakePipelines{"shipyard": {Name: "shipyard"}},
		Submitter: sub,
		Now:       func() time.Time { return start },
	})
	require.NoError(t, err)
	return s
}

func TestCalculateNextDue(t *testing.T) {
	next, err := CalculateNextDue(&Schedule{Cron: "0 3 * * *"}, start)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)

	// 03:00 в Москве — 00:00 UTC
	next, err = CalculateNextDue(&Schedule{Cron: "0 3 * * *", Timezone: "Europe/Moscow"}, start)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), next)

	next, err = CalculateNextDue(&Schedule{Cron: "@hourly"}, start)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), next)

	_, err = CalculateNextDue(&Schedule{Cron: "0 3 * * *", Timezone: "Mars/Olympus"}, start)
	assert.Error(t, err)
}

func TestValidateCronExpr(t *testing.T) {
	assert.NoError(t, ValidateCronExpr("*/5 * * * *"))
	assert.NoError(t, ValidateCronExpr("@daily"))
	assert.Error(t, ValidateCronExpr("* * *"))
	assert.Error(t, ValidateCronExpr("every day"))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{Schedules: []config.Schedule{{Name: "bad", Cron: "nope", Pipeline: "shipyard"}}})
	assert.Error(t, err)

	_, err = New(Config{Schedules: []config.Schedule{{Name: "bad", Cron: "@daily", Pipeline: "shipyard", Event: "merge"}}})
	assert.Error(t, err)
}

func TestTick_SubmitsDueSchedules(t *testing.T) {
	sub := &fakeSubmitter{}
	disabled := false
	s := newTestScheduler(t, sub,
		config.Schedule{Name: "nightly", Cron: "0 3 * * *", Pipeline: "shipyard", Ref: "refs/heads/develop"},
		config.Schedule{Name: "hourly", Cron: "@hourly", Pipeline: "shipyard"},
		config.Schedule{Name: "off", Cron: "@hourly", Pipeline: "shipyard", Enabled: &disabled},
	)
	require.Len(t, s.Schedules(), 2)

	ctx := context.Background()
	assert.Equal(t, 0, s.Tick(ctx, start.Add(30*time.Minute)), "nothing is due yet")

	assert.Equal(t, 1, s.Tick(ctx, start.Add(time.Hour)))
	require.Len(t, sub.triggers, 1)
	assert.Equal(t, domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"}, sub.triggers[0])

	// Повторный тик в тот же момент не создаёт дубликат
	assert.Equal(t, 0, s.Tick(ctx, start.Add(time.Hour)))

	assert.Equal(t, 2, s.Tick(ctx, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)))
	require.Len(t, sub.triggers, 3)
	assert.Contains(t, sub.triggers, domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/develop"})

	schedules := s.Schedules()
	assert.Equal(t, "hourly", schedules[0].Name)
	require.NotNil(t, schedules[1].LastRunID)
	assert.Equal(t, time.Date(2026, 3, 12, 3, 0, 0, 0, time.UTC), schedules[1].NextDueAt)
}

func TestTick_FailureAdvancesSchedule(t *testing.T) {
	sub := &fakeSubmitter{fail: errors.New("orchestrator stopped")}
	s := newTestScheduler(t, sub,
		config.Schedule{Name: "hourly", Cron: "@hourly", Pipeline: "shipyard"},
		config.Schedule{Name: "ghost", Cron: "@hourly", Pipeline: "missing"},
	)

	ctx := context.Background()
	assert.Equal(t, 0, s.Tick(ctx, start.Add(time.Hour)))

	for _, sched := range s.Schedules() {
		assert.Nil(t, sched.LastRunID, sched.Name)
		assert.Equal(t, start.Add(2*time.Hour), sched.NextDueAt, sched.Name)
	}

	sub.fail = nil
	assert.Equal(t, 1, s.Tick(ctx, start.Add(2*time.Hour)), "missing pipeline still fails")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, &fakeSubmitter{})
	s.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
