package artifact

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shaiso/Shipyard/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore — долговременное хранилище артефактов в SQLite.
//
// Write-once обеспечивается первичным ключом (run_id, label, name):
// INSERT ... ON CONFLICT DO NOTHING атомарен, повторная вставка
// не затрагивает ни одной строки.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite открывает (или создаёт) базу артефактов по пути path.
// ":memory:" подходит для тестов.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect artifact database: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply artifact schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put публикует артефакт.
func (s *SQLiteStore) Put(ctx context.Context, runID uuid.UUID, a *domain.Artifact) error {
	if err := validateKey(a.Key); err != nil {
		return err
	}

	stored := domain.NewArtifact(runID, a.Key, a.ContentType, a.Data)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, label, name, content_type, data, size, sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, label, name) DO NOTHING
	`,
		runID.String(),
		stored.Key.Label,
		stored.Key.Name,
		stored.ContentType,
		stored.Data,
		stored.Size,
		stored.SHA256,
		stored.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", a.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", a.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateArtifact, a.Key)
	}

	a.RunID = runID
	a.Size = stored.Size
	a.SHA256 = stored.SHA256
	a.CreatedAt = stored.CreatedAt
	return nil
}

// Get возвращает артефакт по ключу.
func (s *SQLiteStore) Get(ctx context.Context, runID uuid.UUID, key domain.ArtifactKey) (*domain.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_type, data, size, sha256, created_at
		FROM artifacts
		WHERE run_id = ? AND label = ? AND name = ?
	`, runID.String(), key.Label, key.Name)

	a := &domain.Artifact{Key: key, RunID: runID}
	var createdAt string
	if err := row.Scan(&a.ContentType, &a.Data, &a.Size, &a.SHA256, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get artifact %s: %w", key, err)
	}
	a.CreatedAt = parseTime(createdAt)

	return a, nil
}

// List возвращает метаданные артефактов run.
func (s *SQLiteStore) List(ctx context.Context, runID uuid.UUID) ([]*domain.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, name, content_type, size, sha256, created_at
		FROM artifacts
		WHERE run_id = ?
		ORDER BY label, name
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Artifact, 0)
	for rows.Next() {
		a := &domain.Artifact{RunID: runID}
		var createdAt string
		if err := rows.Scan(&a.Key.Label, &a.Key.Name, &a.ContentType, &a.Size, &a.SHA256, &createdAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}

	return out, rows.Err()
}

// DeleteRun удаляет все артефакты run.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE run_id = ?`, runID.String())
	if err != nil {
		return 0, fmt.Errorf("delete run artifacts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete run artifacts: %w", err)
	}
	return int(n), nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
