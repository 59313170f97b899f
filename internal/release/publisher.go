package release

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Publisher — внешнее хранилище релизов.
type Publisher interface {
	// CreateDraft создаёт черновик релиза.
	// Если тег уже занят — ErrReleaseExists, существующий релиз не меняется.
	CreateDraft(ctx context.Context, rec *domain.ReleaseRecord) error

	// AttachAsset прикрепляет файл к черновику.
	AttachAsset(ctx context.Context, tag string, asset domain.ReleaseAsset, data []byte) error

	// Get возвращает релиз по тегу или ErrReleaseNotFound.
	Get(ctx context.Context, tag string) (*domain.ReleaseRecord, error)
}

// MemoryPublisher — Publisher в памяти процесса.
type MemoryPublisher struct {
	mu       sync.RWMutex
	releases map[string]*domain.ReleaseRecord
	data     map[string]map[string][]byte // tag → asset name → data
}

// NewMemoryPublisher создаёт пустой публикатор.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		releases: make(map[string]*domain.ReleaseRecord),
		data:     make(map[string]map[string][]byte),
	}
}

// CreateDraft создаёт черновик.
func (p *MemoryPublisher) CreateDraft(ctx context.Context, rec *domain.ReleaseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.releases[rec.Tag]; exists {
		return fmt.Errorf("%w: %s", ErrReleaseExists, rec.Tag)
	}

	stored := *rec
	stored.Assets = append([]domain.ReleaseAsset(nil), rec.Assets...)
	p.releases[rec.Tag] = &stored
	p.data[rec.Tag] = make(map[string][]byte)
	return nil
}

// AttachAsset прикрепляет файл.
func (p *MemoryPublisher) AttachAsset(ctx context.Context, tag string, asset domain.ReleaseAsset, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.releases[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	rec.Assets = append(rec.Assets, asset)
	p.data[tag][asset.Name] = buf
	return nil
}

// Get возвращает копию релиза.
func (p *MemoryPublisher) Get(ctx context.Context, tag string) (*domain.ReleaseRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.releases[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}

	out := *rec
	out.Assets = append([]domain.ReleaseAsset(nil), rec.Assets...)
	return &out, nil
}

// AssetData возвращает содержимое прикреплённого файла.
func (p *MemoryPublisher) AssetData(tag, name string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, ok := p.data[tag][name]
	return data, ok
}

// List возвращает все релизы, отсортированные по тегу.
func (p *MemoryPublisher) List() []*domain.ReleaseRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*domain.ReleaseRecord, 0, len(p.releases))
	for _, rec := range p.releases {
		cp := *rec
		cp.Assets = append([]domain.ReleaseAsset(nil), rec.Assets...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
