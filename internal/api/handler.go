package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/repo"
	"github.com/shaiso/Shipyard/internal/scheduler"
)

// Runs — управление runs (реализуется orchestrator.Orchestrator).
type Runs interface {
	Submit(ctx context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error)
	Get(runID uuid.UUID) (*domain.Run, error)
	Jobs(runID uuid.UUID) ([]domain.JobInstance, error)
	List() []domain.Run
	Cancel(runID uuid.UUID) error
	GetActiveRunStats(runID uuid.UUID) (orchestrator.RunStats, bool)
}

// Pipelines — каталог pipeline (реализуется engine.Catalog).
type Pipelines interface {
	Pipeline(name string) (*domain.PipelineSpec, error)
	Names() ([]string, error)
}

// History — журнал завершённых runs (реализуется repo.Journal).
// Используется, когда run уже вытеснен из памяти orchestrator.
type History interface {
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// Schedules — список расписаний (реализуется scheduler.Scheduler).
type Schedules interface {
	Schedules() []scheduler.Schedule
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs            Runs
	pipelines       Pipelines
	history         History
	schedules       Schedules
	webhookSecret   string
	defaultPipeline string
	logger          *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs      Runs
	Pipelines Pipelines

	// History — опционально.
	History History

	// Schedules — опционально.
	Schedules Schedules

	// WebhookSecret — секрет подписи GitHub webhook. Пустой — подпись не проверяется.
	WebhookSecret string

	// DefaultPipeline — pipeline для webhook без ?pipeline=.
	DefaultPipeline string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		runs:            cfg.Runs,
		pipelines:       cfg.Pipelines,
		history:         cfg.History,
		schedules:       cfg.Schedules,
		webhookSecret:   cfg.WebhookSecret,
		defaultPipeline: cfg.DefaultPipeline,
		logger:          logger,
	}
}
