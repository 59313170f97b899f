package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReleaseRecord — агрегированный релиз, созданный Release Gate.
//
// Draft всегда true: публикацию из черновика выполняет человек.
type ReleaseRecord struct {
	Tag        string         `json:"tag"`
	Title      string         `json:"title"`
	Draft      bool           `json:"draft"`
	Prerelease bool           `json:"prerelease"`
	RunID      uuid.UUID      `json:"run_id"`
	Assets     []ReleaseAsset `json:"assets"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ReleaseAsset — файл, прикреплённый к релизу.
type ReleaseAsset struct {
	Name        string      `json:"name"`
	ContentType string      `json:"content_type"`
	SourceKey   ArtifactKey `json:"source_artifact_key"`
	Size        int64       `json:"size"`
	SHA256      string      `json:"sha256,omitempty"`
}
