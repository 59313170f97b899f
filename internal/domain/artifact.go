package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ArtifactKey — ключ артефакта внутри run: (метка экземпляра, имя).
type ArtifactKey struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

// String возвращает ключ в виде "label/name".
func (k ArtifactKey) String() string {
	return k.Label + "/" + k.Name
}

// Artifact — неизменяемый именованный blob, опубликованный экземпляром job.
type Artifact struct {
	Key         ArtifactKey `json:"key"`
	RunID       uuid.UUID   `json:"run_id"`
	ContentType string      `json:"content_type"`
	Data        []byte      `json:"-"`
	Size        int64       `json:"size"`
	SHA256      string      `json:"sha256"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewArtifact создаёт артефакт и считает его размер и контрольную сумму.
// Data копируется, чтобы вызывающий не мог изменить опубликованный blob.
func NewArtifact(runID uuid.UUID, key ArtifactKey, contentType string, data []byte) *Artifact {
	buf := make([]byte, len(data))
	copy(buf, data)
	sum := sha256.Sum256(buf)
	return &Artifact{
		Key:         key,
		RunID:       runID,
		ContentType: contentType,
		Data:        buf,
		Size:        int64(len(buf)),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now(),
	}
}
