package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// DefaultTagPrefix — префикс ref, при котором релиз публикуется.
const DefaultTagPrefix = "refs/tags/v"

// Predicate решает, нужен ли релиз для данного триггера.
type Predicate func(trigger domain.Trigger) bool

// PrefixPredicate возвращает предикат "ref начинается с prefix".
func PrefixPredicate(prefix string) Predicate {
	return func(trigger domain.Trigger) bool {
		return strings.HasPrefix(trigger.Ref, prefix)
	}
}

// Config — конфигурация Gate.
type Config struct {
	// Publisher — куда публикуется релиз (обязательно).
	Publisher Publisher

	// Store — откуда берутся артефакты (обязательно).
	Store artifact.Store

	// TagPrefix — префикс ref для предиката по умолчанию (default: refs/tags/v).
	TagPrefix string

	// Predicate — переопределяет предикат по префиксу.
	Predicate Predicate

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Gate — Release Gate.
//
// Gate не хранит состояния между вызовами Run и может
// использоваться несколькими run одновременно.
type Gate struct {
	publisher Publisher
	store     artifact.Store
	prefix    string
	predicate Predicate
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewGate создаёт Gate.
func NewGate(cfg Config) *Gate {
	prefix := cfg.TagPrefix
	if prefix == "" {
		prefix = DefaultTagPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		publisher: cfg.Publisher,
		store:     cfg.Store,
		prefix:    prefix,
		predicate: cfg.Predicate,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// TagPrefix возвращает настроенный префикс.
func (g *Gate) TagPrefix() string {
	return g.prefix
}

// AssetSpec — артефакт, который нужно прикрепить к релизу.
type AssetSpec struct {
	// Key — ключ артефакта в Artifact Store.
	Key domain.ArtifactKey

	// Name — имя файла в релизе.
	Name string

	// ContentType — переопределяет тип содержимого артефакта.
	ContentType string
}

// Request — вход Gate.
type Request struct {
	RunID   uuid.UUID
	Trigger domain.Trigger

	// TagPrefix — переопределяет префикс Gate для этого запроса.
	TagPrefix string

	// Title — заголовок релиза. По умолчанию "Release <tag>".
	Title string

	// Prerelease — nil означает "тег содержит дефис".
	Prerelease *bool

	// Assets — упорядоченный список артефактов для релиза.
	Assets []AssetSpec
}

// Outcome — результат работы Gate.
type Outcome struct {
	// State — финальное состояние: SKIPPED, PUBLISHED или FAILED.
	State domain.ReleaseState

	// Transitions — все пройденные состояния по порядку.
	Transitions []domain.ReleaseState

	// Record — черновик релиза. Nil, если Drafting не был достигнут
	// или черновик не удалось создать.
	Record *domain.ReleaseRecord

	// Reason — пояснение для SKIPPED и FAILED.
	Reason string
}

// Summary возвращает итог для Run.
func (o *Outcome) Summary() *domain.ReleaseSummary {
	s := &domain.ReleaseSummary{State: o.State, Reason: o.Reason}
	if o.Record != nil {
		s.Tag = o.Record.Tag
	}
	return s
}

// Run проводит релиз через машину состояний.
//
// Возвращает ошибку только для FAILED. SKIPPED — нормальный исход.
// Отменённый ctx переводит Gate в FAILED до завершения.
func (g *Gate) Run(ctx context.Context, req *Request) (*Outcome, error) {
	logger := telemetry.WithRunID(g.logger, req.RunID.String()).With("ref", req.Trigger.Ref)

	out := &Outcome{State: domain.ReleaseStateIdle}
	out.Transitions = append(out.Transitions, domain.ReleaseStateIdle)

	moveTo := func(state domain.ReleaseState) {
		out.State = state
		out.Transitions = append(out.Transitions, state)
		logger.Debug("release gate transition", "state", state)
	}

	fail := func(err error) (*Outcome, error) {
		moveTo(domain.ReleaseStateFailed)
		out.Reason = err.Error()
		g.metrics.ReleaseFinished(string(out.State))
		logger.Error("release failed", "error", err)
		return out, err
	}

	// Evaluating
	moveTo(domain.ReleaseStateEvaluating)
	if !g.evaluate(req) {
		moveTo(domain.ReleaseStateSkipped)
		out.Reason = fmt.Sprintf("ref %q does not match release predicate", req.Trigger.Ref)
		g.metrics.ReleaseFinished(string(out.State))
		logger.Info("release skipped", "reason", out.Reason)
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("release cancelled: %w", err))
	}

	tag := req.Trigger.TagName()
	if tag == "" {
		return fail(fmt.Errorf("%w: ref %q is not a tag", ErrInvalidTag, req.Trigger.Ref))
	}
	if len(req.Assets) == 0 {
		return fail(ErrNoAssets)
	}

	// Drafting
	moveTo(domain.ReleaseStateDrafting)
	rec := &domain.ReleaseRecord{
		Tag:        tag,
		Title:      req.Title,
		Draft:      true,
		Prerelease: strings.Contains(tag, "-"),
		RunID:      req.RunID,
		Assets:     make([]domain.ReleaseAsset, 0, len(req.Assets)),
		CreatedAt:  time.Now(),
	}
	if rec.Title == "" {
		rec.Title = "Release " + tag
	}
	if req.Prerelease != nil {
		rec.Prerelease = *req.Prerelease
	}

	if err := g.publisher.CreateDraft(ctx, rec); err != nil {
		return fail(fmt.Errorf("create draft %s: %w", tag, err))
	}
	out.Record = rec
	logger.Info("release draft created", "tag", tag)

	// AssetsAttaching: сначала читаем всё, потом прикрепляем
	moveTo(domain.ReleaseStateAttaching)

	fetched := make([]*domain.Artifact, len(req.Assets))
	var missing []string
	for i, spec := range req.Assets {
		a, err := g.store.Get(ctx, req.RunID, spec.Key)
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				missing = append(missing, spec.Key.String())
				continue
			}
			return fail(fmt.Errorf("fetch artifact %s: %w", spec.Key, err))
		}
		fetched[i] = a
	}
	if len(missing) > 0 {
		return fail(fmt.Errorf("%w: %s", ErrMissingAsset, strings.Join(missing, ", ")))
	}

	for i, spec := range req.Assets {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("release cancelled: %w", err))
		}

		a := fetched[i]
		asset := domain.ReleaseAsset{
			Name:        spec.Name,
			ContentType: spec.ContentType,
			SourceKey:   spec.Key,
			Size:        a.Size,
			SHA256:      a.SHA256,
		}
		if asset.Name == "" {
			asset.Name = spec.Key.Name
		}
		if asset.ContentType == "" {
			asset.ContentType = a.ContentType
		}

		if err := g.publisher.AttachAsset(ctx, tag, asset, a.Data); err != nil {
			return fail(fmt.Errorf("attach %s: %w", asset.Name, err))
		}
		rec.Assets = append(rec.Assets, asset)
		logger.Debug("release asset attached", "asset", asset.Name, "size", asset.Size)
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("release cancelled: %w", err))
	}

	// Published: релиз остаётся черновиком
	moveTo(domain.ReleaseStatePublished)
	g.metrics.ReleaseFinished(string(out.State))
	logger.Info("release published as draft", "tag", tag, "assets", len(rec.Assets))

	return out, nil
}

// evaluate вычисляет предикат.
func (g *Gate) evaluate(req *Request) bool {
	if g.predicate != nil && req.TagPrefix == "" {
		return g.predicate(req.Trigger)
	}
	prefix := req.TagPrefix
	if prefix == "" {
		prefix = g.prefix
	}
	return PrefixPredicate(prefix)(req.Trigger)
}
