package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/config"
	"github.com/shaiso/Shipyard/internal/domain"
)

const defaultInterval = time.Second

// Submitter — запуск run (реализуется orchestrator.Orchestrator).
type Submitter interface {
	Submit(ctx context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error)
}

// PipelineSource — загрузка pipeline по имени (реализуется engine.Catalog).
type PipelineSource interface {
	Pipeline(name string) (*domain.PipelineSpec, error)
}

// Schedule — расписание запуска одного pipeline.
type Schedule struct {
	Name     string
	Cron     string
	Timezone string
	Pipeline string
	Trigger  domain.Trigger

	NextDueAt time.Time
	LastRunID *uuid.UUID
	LastRunAt *time.Time
}

// RecordRun фиксирует запуск и сдвигает NextDueAt.
func (s *Schedule) RecordRun(runID uuid.UUID, at, nextDue time.Time) {
	s.LastRunID = &runID
	s.LastRunAt = &at
	s.NextDueAt = nextDue
}

// Scheduler — планировщик, обрабатывающий due расписания.
type Scheduler struct {
	pipelines PipelineSource
	submitter Submitter
	logger    *slog.Logger
	interval  time.Duration

	mu        sync.Mutex
	schedules []*Schedule
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedules — расписания из конфигурации. Выключенные пропускаются.
	Schedules []config.Schedule

	Pipelines PipelineSource
	Submitter Submitter

	// Interval — период тика (default: 1s).
	Interval time.Duration

	// Now — текущее время для вычисления первого NextDueAt (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Scheduler. Некорректное расписание — ошибка.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	now := time.Now()
	if cfg.Now != nil {
		now = cfg.Now()
	}

	s := &Scheduler{
		pipelines: cfg.Pipelines,
		submitter: cfg.Submitter,
		logger:    logger,
		interval:  interval,
	}

	for _, c := range cfg.Schedules {
		if !c.IsEnabled() {
			logger.Info("schedule disabled", "schedule", c.Name)
			continue
		}

		sched, err := fromConfig(c)
		if err != nil {
			return nil, err
		}
		if sched.NextDueAt, err = CalculateNextDue(sched, now); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
		}
		s.schedules = append(s.schedules, sched)
	}

	return s, nil
}

// fromConfig переводит расписание из конфигурации.
func fromConfig(c config.Schedule) (*Schedule, error) {
	if err := ValidateCronExpr(c.Cron); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
	}

	event := domain.EventPush
	if c.Event != "" {
		e, err := domain.ParseEventKind(c.Event)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
		}
		event = e
	}

	ref := c.Ref
	if ref == "" {
		ref = domain.RefHeadsPrefix + "main"
	}

	return &Schedule{
		Name:     c.Name,
		Cron:     c.Cron,
		Timezone: c.Timezone,
		Pipeline: c.Pipeline,
		Trigger:  domain.Trigger{Event: event, Ref: ref},
	}, nil
}

// Schedules возвращает копии расписаний, отсортированные по имени.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run тикает с периодом Interval, пока не отменён ctx.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.schedules), "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due расписания (NextDueAt <= now)
// 2. Для каждого загружает pipeline и отправляет run
// 3. Сдвигает NextDueAt
//
// Ошибки одного расписания не блокируют обработку остальных.
// Возвращает количество созданных runs.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due, created int
	for _, sched := range s.schedules {
		if sched.NextDueAt.After(now) {
			continue
		}
		due++

		if err := s.processSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"schedule", sched.Name,
				"pipeline", sched.Pipeline,
				"error", err,
			)
			continue
		}
		created++
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed", "due", due, "runs_created", created)
	}
	return created
}

// processSchedule запускает run одного расписания.
//
// NextDueAt сдвигается даже при ошибке: пропущенный слот не повторяется
// на каждом тике.
func (s *Scheduler) processSchedule(ctx context.Context, sched *Schedule, now time.Time) error {
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return err
	}

	spec, err := s.pipelines.Pipeline(sched.Pipeline)
	if err != nil {
		sched.NextDueAt = nextDue
		return fmt.Errorf("load pipeline: %w", err)
	}

	run, err := s.submitter.Submit(ctx, spec, sched.Trigger)
	if err != nil {
		sched.NextDueAt = nextDue
		return fmt.Errorf("submit run: %w", err)
	}

	sched.RecordRun(run.ID, now, nextDue)

	s.logger.Info("created run from schedule",
		"run_id", run.ID,
		"schedule", sched.Name,
		"pipeline", sched.Pipeline,
		"ref", sched.Trigger.Ref,
		"next_due_at", nextDue,
	)
	return nil
}
