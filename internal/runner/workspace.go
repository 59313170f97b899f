package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Blob — упакованный результат внутри workspace.
type Blob struct {
	Name   string
	Data   []byte
	SHA256 string
}

// Size возвращает размер blob'а.
func (b Blob) Size() int64 {
	return int64(len(b.Data))
}

// Workspace — локальное состояние одного экземпляра job.
//
// Blob'ы в workspace не видны другим экземплярам, пока шаг
// upload-artifact не опубликует их в Artifact Store.
// Workspace используется одной горутиной экземпляра.
type Workspace struct {
	// Dir — рабочая директория шагов. Пусто — текущая директория процесса.
	Dir string

	blobs map[string]Blob
	last  string
}

// NewWorkspace создаёт пустой workspace.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{Dir: dir, blobs: make(map[string]Blob)}
}

// PutBlob сохраняет blob под именем name и делает его последним.
func (w *Workspace) PutBlob(name string, data []byte) Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	sum := sha256.Sum256(buf)

	b := Blob{Name: name, Data: buf, SHA256: hex.EncodeToString(sum[:])}
	w.blobs[name] = b
	w.last = name
	return b
}

// Blob возвращает blob по имени.
func (w *Workspace) Blob(name string) (Blob, error) {
	b, ok := w.blobs[name]
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
	}
	return b, nil
}

// LastBlob возвращает последний сохранённый blob.
func (w *Workspace) LastBlob() (Blob, error) {
	if w.last == "" {
		return Blob{}, fmt.Errorf("%w: workspace is empty", ErrBlobNotFound)
	}
	return w.blobs[w.last], nil
}

// Resolve возвращает путь относительно Dir.
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) || w.Dir == "" {
		return path
	}
	return filepath.Join(w.Dir, path)
}
