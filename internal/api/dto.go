package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/scheduler"
)

// Run DTOs

// CreateRunRequest — запрос на запуск pipeline.
type CreateRunRequest struct {
	Pipeline  string `json:"pipeline"`
	EventKind string `json:"event_kind,omitempty"`
	Ref       string `json:"ref"`
}

// ReleaseResponse — итог Release Gate.
type ReleaseResponse struct {
	State  string `json:"state"`
	Tag    string `json:"tag,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// JobCounts — количество экземпляров по статусам.
type JobCounts = orchestrator.RunStats

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Pipeline   string           `json:"pipeline"`
	EventKind  string           `json:"event_kind"`
	Ref        string           `json:"ref"`
	Status     string           `json:"status"`
	Active     bool             `json:"active,omitempty"`
	Jobs       *JobCounts       `json:"jobs,omitempty"`
	Release    *ReleaseResponse `json:"release,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
// Счётчики экземпляров заполняются, только если run содержит Jobs.
func RunFromDomain(r domain.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		Pipeline:   r.Pipeline,
		EventKind:  string(r.Trigger.Event),
		Ref:        r.Trigger.Ref,
		Status:     string(r.Status),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}

	if r.Release != nil {
		resp.Release = &ReleaseResponse{
			State:  string(r.Release.State),
			Tag:    r.Release.Tag,
			Reason: r.Release.Reason,
		}
	}

	if len(r.Jobs) > 0 {
		counts := orchestrator.CountJobs(r.Jobs)
		resp.Jobs = &counts
	}

	return resp
}

// Job DTOs

// StepResponse — результат шага.
type StepResponse struct {
	StepID     string            `json:"step_id"`
	Action     string            `json:"action"`
	Status     string            `json:"status"`
	ExitCode   int               `json:"exit_code"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts,omitempty"`
	BestEffort bool              `json:"best_effort,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// JobResponse — ответ с экземпляром job.
type JobResponse struct {
	ID          uuid.UUID      `json:"id"`
	RunID       uuid.UUID      `json:"run_id"`
	Job         string         `json:"job"`
	MatrixValue string         `json:"matrix_value,omitempty"`
	Label       string         `json:"label"`
	Status      string         `json:"status"`
	Steps       []StepResponse `json:"steps,omitempty"`
	Error       string         `json:"error,omitempty"`
	SkipReason  string         `json:"skip_reason,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

// JobFromDomain конвертирует domain.JobInstance в JobResponse.
func JobFromDomain(j domain.JobInstance) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		RunID:       j.RunID,
		Job:         j.Template,
		MatrixValue: j.MatrixValue,
		Label:       j.Label(),
		Status:      string(j.Status),
		Error:       j.Error,
		SkipReason:  j.SkipReason,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		DurationMs:  j.Duration().Milliseconds(),
	}
	for _, s := range j.StepResults {
		resp.Steps = append(resp.Steps, StepResponse{
			StepID:     s.StepID,
			Action:     s.Action,
			Status:     string(s.Status),
			ExitCode:   s.ExitCode,
			Outputs:    s.Outputs,
			Error:      s.Error,
			Attempts:   s.Attempts,
			BestEffort: s.BestEffort,
			DurationMs: s.DurationMs,
		})
	}
	return resp
}

// Schedule DTOs

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	Timezone  string     `json:"timezone,omitempty"`
	Pipeline  string     `json:"pipeline"`
	EventKind string     `json:"event_kind"`
	Ref       string     `json:"ref"`
	NextDueAt time.Time  `json:"next_due_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// ScheduleFromDomain конвертирует scheduler.Schedule в ScheduleResponse.
func ScheduleFromDomain(s scheduler.Schedule) ScheduleResponse {
	return ScheduleResponse{
		Name:      s.Name,
		Cron:      s.Cron,
		Timezone:  s.Timezone,
		Pipeline:  s.Pipeline,
		EventKind: string(s.Trigger.Event),
		Ref:       s.Trigger.Ref,
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
		LastRunID: s.LastRunID,
	}
}
