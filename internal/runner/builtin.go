package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// DefaultContentType — тип содержимого артефакта по умолчанию.
const DefaultContentType = "application/octet-stream"

// DefaultRegistry создаёт реестр со встроенными действиями.
// Действие release сюда не входит: его регистрирует wiring сервера.
func DefaultRegistry(store artifact.Store, commands CommandRunner, metrics *telemetry.Metrics) *Registry {
	r := NewRegistry()
	r.Register(NewShellAction(commands))
	r.Register(&SetOutputAction{})
	r.Register(&PackageAction{})
	r.Register(&UploadArtifactAction{Store: store, Metrics: metrics})
	r.Register(NewHTTPAction(nil))
	return r
}

// SetOutputAction — действие "set-output".
//
// Все параметры становятся outputs шага. Зарезервированные параметры:
//   - exit_code — ненулевое значение завершает шаг с этим кодом
//   - error     — текст ошибки для ненулевого exit_code
type SetOutputAction struct{}

// Name возвращает имя действия.
func (a *SetOutputAction) Name() string { return "set-output" }

// Execute копирует параметры в outputs.
func (a *SetOutputAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		if k == "exit_code" || k == "error" {
			continue
		}
		outputs[k] = v
	}

	code := 0
	if raw := req.Param("exit_code", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: exit_code %q is not a number", ErrInvalidParams, raw)
		}
		code = n
	}

	result := &Result{ExitCode: code, Outputs: outputs}
	if code != 0 {
		result.Error = req.Param("error", fmt.Sprintf("exited with code %d", code))
	}
	return result, nil
}

// PackageAction — действие "package".
//
// Параметры:
//   - path или content — файл (относительно workspace) или inline-содержимое
//   - name — имя blob'а; по умолчанию имя файла или "package"
//
// Outputs: blob, size, sha256.
type PackageAction struct{}

// Name возвращает имя действия.
func (a *PackageAction) Name() string { return "package" }

// Execute загружает содержимое в workspace.
func (a *PackageAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := req.Param("path", "")
	content, hasContent := req.Params["content"]

	var data []byte
	name := req.Param("name", "package")

	switch {
	case path != "":
		b, err := os.ReadFile(req.Workspace.Resolve(path))
		if err != nil {
			return nil, fmt.Errorf("read package %s: %w", path, err)
		}
		data = b
		name = req.Param("name", filepath.Base(path))
	case hasContent:
		data = []byte(content)
	default:
		return nil, fmt.Errorf("%w: either \"path\" or \"content\" is required", ErrInvalidParams)
	}

	blob := req.Workspace.PutBlob(name, data)

	return Success(map[string]string{
		"blob":   blob.Name,
		"size":   strconv.FormatInt(blob.Size(), 10),
		"sha256": blob.SHA256,
	}), nil
}

// UploadArtifactAction — действие "upload-artifact".
//
// Публикует blob из workspace в Artifact Store под ключом
// (метка экземпляра, name).
//
// Параметры:
//   - name (обязательный) — имя артефакта
//   - blob — имя blob'а в workspace; по умолчанию последний упакованный
//   - content_type — по умолчанию application/octet-stream
//
// Outputs: artifact_key, size, sha256.
type UploadArtifactAction struct {
	Store   artifact.Store
	Metrics *telemetry.Metrics
}

// Name возвращает имя действия.
func (a *UploadArtifactAction) Name() string { return "upload-artifact" }

// Execute публикует артефакт.
func (a *UploadArtifactAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	name, err := req.RequireParam("name")
	if err != nil {
		return nil, err
	}

	var blob Blob
	if from := req.Param("blob", ""); from != "" {
		blob, err = req.Workspace.Blob(from)
	} else {
		blob, err = req.Workspace.LastBlob()
	}
	if err != nil {
		return nil, err
	}

	art := &domain.Artifact{
		Key:         domain.ArtifactKey{Label: req.Label, Name: name},
		ContentType: req.Param("content_type", DefaultContentType),
		Data:        blob.Data,
	}
	if err := a.Store.Put(ctx, req.RunID, art); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	a.Metrics.ArtifactStored(art.Size)

	req.Log().Info("artifact uploaded",
		"artifact", art.Key.String(),
		"size", art.Size,
		"sha256", art.SHA256,
	)

	return Success(map[string]string{
		"artifact_key": art.Key.String(),
		"size":         strconv.FormatInt(art.Size, 10),
		"sha256":       art.SHA256,
	}), nil
}
