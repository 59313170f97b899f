package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/release"
)

// ReleaseRepo хранит черновики релизов в Postgres.
// Реализует release.Publisher.
type ReleaseRepo struct {
	pool *pgxpool.Pool
}

// NewReleaseRepo создаёт новый ReleaseRepo.
func NewReleaseRepo(pool *pgxpool.Pool) *ReleaseRepo {
	return &ReleaseRepo{pool: pool}
}

// CreateDraft создаёт черновик. Занятый тег — release.ErrReleaseExists.
func (r *ReleaseRepo) CreateDraft(ctx context.Context, rec *domain.ReleaseRecord) error {
	query := `
		INSERT INTO releases (tag, title, draft, prerelease, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tag) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.Tag,
		rec.Title,
		rec.Draft,
		rec.Prerelease,
		rec.RunID,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", release.ErrReleaseExists, rec.Tag)
	}
	return nil
}

// AttachAsset добавляет файл в конец списка файлов релиза.
func (r *ReleaseRepo) AttachAsset(ctx context.Context, tag string, asset domain.ReleaseAsset, data []byte) error {
	query := `
		INSERT INTO release_assets
			(tag, position, name, content_type, source_label, source_name, size, sha256, data)
		SELECT $1, COALESCE(MAX(position), 0) + 1, $2, $3, $4, $5, $6, $7, $8
		FROM release_assets WHERE tag = $1
	`
	_, err := r.pool.Exec(ctx, query,
		tag,
		asset.Name,
		asset.ContentType,
		asset.SourceKey.Label,
		asset.SourceKey.Name,
		asset.Size,
		asset.SHA256,
		data,
	)
	if err != nil {
		return fmt.Errorf("insert release asset %s: %w", asset.Name, err)
	}
	return nil
}

// Get возвращает релиз с файлами (без содержимого).
func (r *ReleaseRepo) Get(ctx context.Context, tag string) (*domain.ReleaseRecord, error) {
	var rec domain.ReleaseRecord
	err := r.pool.QueryRow(ctx, `
		SELECT tag, title, draft, prerelease, run_id, created_at
		FROM releases WHERE tag = $1
	`, tag).Scan(&rec.Tag, &rec.Title, &rec.Draft, &rec.Prerelease, &rec.RunID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", release.ErrReleaseNotFound, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("get release: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT name, content_type, source_label, source_name, size, sha256
		FROM release_assets
		WHERE tag = $1
		ORDER BY position
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("list release assets: %w", err)
	}
	defer rows.Close()

	rec.Assets = make([]domain.ReleaseAsset, 0)
	for rows.Next() {
		var a domain.ReleaseAsset
		if err := rows.Scan(&a.Name, &a.ContentType, &a.SourceKey.Label, &a.SourceKey.Name, &a.Size, &a.SHA256); err != nil {
			return nil, fmt.Errorf("scan release asset: %w", err)
		}
		rec.Assets = append(rec.Assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AssetData возвращает содержимое файла релиза.
func (r *ReleaseRepo) AssetData(ctx context.Context, tag, name string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM release_assets WHERE tag = $1 AND name = $2`, tag, name,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get release asset: %w", err)
	}
	return data, nil
}
