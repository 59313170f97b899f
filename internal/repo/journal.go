package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Journal — журнал runs поверх RunRepo и JobRepo.
// Реализует orchestrator.Journal.
type Journal struct {
	Runs *RunRepo
	Jobs *JobRepo
}

// NewJournal создаёт журнал на пуле соединений.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{
		Runs: NewRunRepo(pool),
		Jobs: NewJobRepo(pool),
	}
}

// CreateRun сохраняет новый run.
func (j *Journal) CreateRun(ctx context.Context, run *domain.Run) error {
	return j.Runs.Create(ctx, run)
}

// UpdateRun обновляет run.
func (j *Journal) UpdateRun(ctx context.Context, run *domain.Run) error {
	return j.Runs.Update(ctx, run)
}

// SaveJob сохраняет экземпляр.
func (j *Journal) SaveJob(ctx context.Context, inst *domain.JobInstance) error {
	return j.Jobs.Save(ctx, inst)
}

// GetRun возвращает run вместе с экземплярами.
func (j *Journal) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := j.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	jobs, err := j.Jobs.ListByRunID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load jobs of run %s: %w", id, err)
	}
	run.Jobs = jobs
	return run, nil
}

// ListRuns возвращает последние runs без экземпляров.
// Фильтры применяются в запросе до LIMIT.
func (j *Journal) ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	return j.Runs.List(ctx, filter)
}
