package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Shipyard/internal/domain"
)

// JobRepo — репозиторий экземпляров job.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	id, run_id, template, matrix_value, status, step_results,
	error, skip_reason, started_at, finished_at`

// Save создаёт экземпляр или обновляет его состояние.
func (r *JobRepo) Save(ctx context.Context, inst *domain.JobInstance) error {
	results := inst.StepResults
	if results == nil {
		results = []domain.StepResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}

	query := `
		INSERT INTO job_instances (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    step_results = EXCLUDED.step_results,
		    error = EXCLUDED.error,
		    skip_reason = EXCLUDED.skip_reason,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		inst.ID,
		inst.RunID,
		inst.Template,
		inst.MatrixValue,
		string(inst.Status),
		resultsJSON,
		nullString(inst.Error),
		nullString(inst.SkipReason),
		inst.StartedAt,
		inst.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save job instance: %w", err)
	}
	return nil
}

// GetByID возвращает экземпляр по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobInstance, error) {
	query := `SELECT ` + jobColumns + ` FROM job_instances WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListByRunID возвращает экземпляры run, упорядоченные по шаблону и метке.
func (r *JobRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobInstance, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_instances
		WHERE run_id = $1
		ORDER BY template, matrix_value
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list job instances: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobInstance
	for rows.Next() {
		inst, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *inst)
	}
	return jobs, rows.Err()
}

// CountByRunAndStatus возвращает количество экземпляров run с указанным статусом.
func (r *JobRepo) CountByRunAndStatus(ctx context.Context, runID uuid.UUID, status domain.JobStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_instances WHERE run_id = $1 AND status = $2`,
		runID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count job instances: %w", err)
	}
	return count, nil
}

// scanJob сканирует одну строку в JobInstance.
func scanJob(row pgx.Row) (*domain.JobInstance, error) {
	var inst domain.JobInstance
	var status string
	var resultsJSON []byte
	var jobError, skipReason *string

	err := row.Scan(
		&inst.ID,
		&inst.RunID,
		&inst.Template,
		&inst.MatrixValue,
		&status,
		&resultsJSON,
		&jobError,
		&skipReason,
		&inst.StartedAt,
		&inst.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job instance: %w", err)
	}

	inst.Status = domain.JobStatus(status)
	inst.Error = deref(jobError)
	inst.SkipReason = deref(skipReason)

	if resultsJSON != nil {
		if err := json.Unmarshal(resultsJSON, &inst.StepResults); err != nil {
			return nil, fmt.Errorf("unmarshal step results: %w", err)
		}
	}

	return &inst, nil
}
