package artifact

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Store — хранилище артефактов.
//
// Все операции ограничены одним run: ссылки между run не поддерживаются.
type Store interface {
	// Put публикует артефакт. Если ключ уже есть — ErrDuplicateArtifact,
	// исходный артефакт не меняется.
	Put(ctx context.Context, runID uuid.UUID, a *domain.Artifact) error

	// Get возвращает артефакт по ключу или ErrNotFound.
	Get(ctx context.Context, runID uuid.UUID, key domain.ArtifactKey) (*domain.Artifact, error)

	// List возвращает метаданные артефактов run (без Data),
	// отсортированные по метке и имени.
	List(ctx context.Context, runID uuid.UUID) ([]*domain.Artifact, error)

	// DeleteRun удаляет все артефакты run и возвращает их количество.
	DeleteRun(ctx context.Context, runID uuid.UUID) (int, error)
}

// validateKey проверяет ключ артефакта.
func validateKey(key domain.ArtifactKey) error {
	if key.Label == "" || key.Name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key.String())
	}
	return nil
}

// sortArtifacts сортирует артефакты по (label, name).
func sortArtifacts(list []*domain.Artifact) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Key.Label != list[j].Key.Label {
			return list[i].Key.Label < list[j].Key.Label
		}
		return list[i].Key.Name < list[j].Key.Name
	})
}

// withoutData возвращает копию метаданных артефакта.
func withoutData(a *domain.Artifact) *domain.Artifact {
	out := *a
	out.Data = nil
	return &out
}
