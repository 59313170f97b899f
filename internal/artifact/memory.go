package artifact

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

type memoryKey struct {
	runID uuid.UUID
	key   domain.ArtifactKey
}

// MemoryStore — хранилище артефактов в памяти процесса.
//
// Вставка использует sync.Map.LoadOrStore: проверка и вставка
// выполняются одной атомарной операцией.
type MemoryStore struct {
	items sync.Map // memoryKey → *domain.Artifact
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Put публикует артефакт.
func (s *MemoryStore) Put(ctx context.Context, runID uuid.UUID, a *domain.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(a.Key); err != nil {
		return err
	}

	stored := domain.NewArtifact(runID, a.Key, a.ContentType, a.Data)
	if _, loaded := s.items.LoadOrStore(memoryKey{runID: runID, key: a.Key}, stored); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateArtifact, a.Key)
	}

	a.RunID = runID
	a.Size = stored.Size
	a.SHA256 = stored.SHA256
	a.CreatedAt = stored.CreatedAt
	return nil
}

// Get возвращает копию артефакта.
func (s *MemoryStore) Get(ctx context.Context, runID uuid.UUID, key domain.ArtifactKey) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := s.items.Load(memoryKey{runID: runID, key: key})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	stored := v.(*domain.Artifact)
	out := *stored
	out.Data = make([]byte, len(stored.Data))
	copy(out.Data, stored.Data)
	return &out, nil
}

// List возвращает метаданные артефактов run.
func (s *MemoryStore) List(ctx context.Context, runID uuid.UUID) ([]*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Artifact, 0)
	s.items.Range(func(k, v any) bool {
		if k.(memoryKey).runID == runID {
			out = append(out, withoutData(v.(*domain.Artifact)))
		}
		return true
	})
	sortArtifacts(out)
	return out, nil
}

// DeleteRun удаляет все артефакты run.
func (s *MemoryStore) DeleteRun(ctx context.Context, runID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	s.items.Range(func(k, _ any) bool {
		if k.(memoryKey).runID == runID {
			s.items.Delete(k)
			deleted++
		}
		return true
	})
	return deleted, nil
}
