package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Catalog — директория pipeline-файлов <name>.yaml (или .yml).
type Catalog struct {
	dir   string
	known func(action string) bool
}

// NewCatalog создаёт каталог над директорией. known задаёт допустимые
// действия (обычно Registry.Has исполнителя); nil — только встроенные.
func NewCatalog(dir string, known func(action string) bool) *Catalog {
	if known == nil {
		known = IsValidAction
	}
	return &Catalog{dir: dir, known: known}
}

// Dir возвращает директорию каталога.
func (c *Catalog) Dir() string {
	return c.dir
}

// Pipeline загружает pipeline по имени файла без расширения.
func (c *Catalog) Pipeline(name string) (*domain.PipelineSpec, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: invalid name %q", ErrPipelineNotFound, name)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(c.dir, name+ext)
		spec, err := LoadWith(path, c.known)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		return spec, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
}

// Names возвращает отсортированные имена pipeline в каталоге.
func (c *Catalog) Names() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read pipeline dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}
