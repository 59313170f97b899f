package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/repo"
	"github.com/shaiso/Shipyard/internal/runner"
	"github.com/shaiso/Shipyard/internal/scheduler"
)

const quickPipeline = `
name: quick
jobs:
  - name: build
    matrix: [linux, windows]
    steps:
      - action: set-output
        params:
          target: "{{ .Matrix }}"
  - name: notify
    depends_on: [build]
    steps:
      - action: set-output
        params:
          ref: "{{ .Trigger.Ref }}"
`

const blockingPipeline = `
name: blocking
jobs:
  - name: wait
    steps:
      - action: block
`

type apiFixture struct {
	orch    *orchestrator.Orchestrator
	server  *httptest.Server
	release chan struct{}
}

func newFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(quickPipeline), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocking.yaml"), []byte(blockingPipeline), 0o644))

	f := &apiFixture{release: make(chan struct{})}

	store := artifact.NewMemoryStore()
	reg := runner.DefaultRegistry(store, nil, nil)
	reg.Register(runner.ActionFunc("block", func(ctx context.Context, _ *runner.Request) (*runner.Result, error) {
		select {
		case <-f.release:
			return runner.Success(nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	f.orch = orchestrator.New(orchestrator.Config{
		Runner: runner.New(runner.Config{Registry: reg}),
		Store:  store,
	})
	require.NoError(t, f.orch.Start(context.Background()))

	cfg.Runs = f.orch
	cfg.Pipelines = engine.NewCatalog(dir, reg.Has)
	if cfg.DefaultPipeline == "" {
		cfg.DefaultPipeline = "quick"
	}

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		f.server.Close()
		f.orch.Stop()
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data
}

func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Error
}

func (f *apiFixture) wait(t *testing.T, id uuid.UUID) *domain.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := f.orch.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func TestCreateRun_AndInspect(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.do(t, http.MethodPost, "/api/v1/runs", CreateRunRequest{Pipeline: "quick", Ref: "refs/tags/v1.0.0"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeData[RunResponse](t, resp)
	assert.Equal(t, "quick", created.Pipeline)
	assert.Equal(t, "tag", created.EventKind, "event kind is derived from the ref")

	f.wait(t, created.ID)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+created.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeData[RunResponse](t, resp)
	assert.Equal(t, "SUCCEEDED", got.Status)
	require.NotNil(t, got.Jobs)
	assert.Equal(t, JobCounts{Total: 3, Succeeded: 3}, *got.Jobs)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+created.ID.String()+"/jobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobs := decodeData[[]JobResponse](t, resp)
	require.Len(t, jobs, 3)
	assert.Equal(t, "build", jobs[0].Job)
	assert.Equal(t, "notify", jobs[2].Job)
	require.Len(t, jobs[2].Steps, 1)
	assert.Equal(t, "refs/tags/v1.0.0", jobs[2].Steps[0].Outputs["ref"])

	resp = f.do(t, http.MethodGet, "/api/v1/runs?pipeline=quick&status=SUCCEEDED", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]RunResponse](t, resp), 1)

	resp = f.do(t, http.MethodGet, "/api/v1/runs?status=FAILED", nil, nil)
	assert.Empty(t, decodeData[[]RunResponse](t, resp))
}

func TestCreateRun_Errors(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"broken json", []byte("{"), http.StatusBadRequest},
		{"no pipeline", CreateRunRequest{Ref: "refs/heads/main"}, http.StatusBadRequest},
		{"no ref", CreateRunRequest{Pipeline: "quick"}, http.StatusBadRequest},
		{"bad event", CreateRunRequest{Pipeline: "quick", Ref: "refs/heads/main", EventKind: "merge"}, http.StatusBadRequest},
		{"unknown pipeline", CreateRunRequest{Pipeline: "missing", Ref: "refs/heads/main"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/v1/runs", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGetRun_NotFound(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, resp).Code)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.do(t, http.MethodPost, "/api/v1/runs", CreateRunRequest{Pipeline: "blocking", Ref: "refs/heads/main"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeData[RunResponse](t, resp)

	resp = f.do(t, http.MethodPost, "/api/v1/runs/"+created.ID.String()+"/cancel", nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	run := f.wait(t, created.ID)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)

	resp = f.do(t, http.MethodPost, "/api/v1/runs/"+created.ID.String()+"/cancel", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "finished run cannot be cancelled")

	resp = f.do(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListPipelines(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.do(t, http.MethodGet, "/api/v1/pipelines", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"blocking", "quick"}, decodeData[[]string](t, resp))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGitHubWebhook(t *testing.T) {
	const secret = "s3cret"
	f := newFixture(t, Config{WebhookSecret: secret})

	post := func(event string, body []byte, signature string) *http.Response {
		return f.do(t, http.MethodPost, "/api/v1/hooks/github", body, map[string]string{
			headerGitHubEvent:     event,
			headerGitHubSignature: signature,
		})
	}

	tagPush := []byte(`{"ref":"refs/tags/v2.1.0","after":"abc"}`)
	resp := post("push", tagPush, sign(secret, tagPush))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	hook := decodeData[WebhookResponse](t, resp)
	require.NotNil(t, hook.Run)
	assert.Equal(t, "tag", hook.Run.EventKind)
	assert.Equal(t, "quick", hook.Run.Pipeline)
	f.wait(t, hook.Run.ID)

	pr := []byte(`{"action":"synchronize","number":17,"pull_request":{"head":{"ref":"feature","sha":"def"}}}`)
	resp = post("pull_request", pr, sign(secret, pr))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	hook = decodeData[WebhookResponse](t, resp)
	assert.Equal(t, "pull_request", hook.Run.EventKind)
	assert.Equal(t, "refs/pull/17/head", hook.Run.Ref)
	f.wait(t, hook.Run.ID)

	resp = post("push", tagPush, sign("wrong", tagPush))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post("push", tagPush, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ping := []byte(`{"zen":"Keep it logically awesome."}`)
	resp = post("ping", ping, sign(secret, ping))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "event ping", decodeData[WebhookResponse](t, resp).Ignored)

	deleted := []byte(`{"ref":"refs/heads/old","deleted":true}`)
	resp = post("push", deleted, sign(secret, deleted))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ref deleted", decodeData[WebhookResponse](t, resp).Ignored)

	closed := []byte(`{"action":"closed","number":17}`)
	resp = post("pull_request", closed, sign(secret, closed))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post("", tagPush, sign(secret, tagPush))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseGitHubEvent(t *testing.T) {
	trigger, ignored, err := parseGitHubEvent("push", []byte(`{"ref":"refs/heads/main"}`))
	require.NoError(t, err)
	assert.Empty(t, ignored)
	assert.Equal(t, domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"}, trigger)

	_, _, err = parseGitHubEvent("push", []byte(`{}`))
	assert.Error(t, err)

	_, _, err = parseGitHubEvent("pull_request", []byte(`{"action":"opened"}`))
	assert.Error(t, err)
}

// fakeHistory — журнал с одним run.
type fakeHistory struct {
	run    domain.Run
	filter repo.RunFilter
}

func (h *fakeHistory) GetRun(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	if id != h.run.ID {
		return nil, repo.ErrNotFound
	}
	run := h.run
	return &run, nil
}

func (h *fakeHistory) ListRuns(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	h.filter = filter
	if filter.Pipeline != "" && filter.Pipeline != h.run.Pipeline {
		return nil, nil
	}
	if filter.Status != "" && filter.Status != h.run.Status {
		return nil, nil
	}
	return []domain.Run{h.run}, nil
}

func TestHistoryFallback(t *testing.T) {
	archived := domain.NewRun("quick", domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"})
	archived.MarkRunning()
	archived.MarkSucceeded()
	archived.Jobs = []domain.JobInstance{{ID: uuid.New(), RunID: archived.ID, Template: "build", Status: domain.JobStatusSucceeded}}

	f := newFixture(t, Config{History: &fakeHistory{run: *archived}})

	resp := f.do(t, http.MethodGet, "/api/v1/runs/"+archived.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SUCCEEDED", decodeData[RunResponse](t, resp).Status)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+archived.ID.String()+"/jobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]JobResponse](t, resp), 1)

	resp = f.do(t, http.MethodGet, "/api/v1/runs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decodeData[[]RunResponse](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, archived.ID, runs[0].ID)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRuns_FiltersGoToHistory(t *testing.T) {
	archived := domain.NewRun("quick", domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"})
	archived.MarkRunning()
	archived.MarkFailed("jobs not satisfied: build")

	history := &fakeHistory{run: *archived}
	f := newFixture(t, Config{History: history})

	resp := f.do(t, http.MethodGet, "/api/v1/runs?pipeline=quick&status=FAILED&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decodeData[[]RunResponse](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, archived.ID, runs[0].ID)

	assert.Equal(t, repo.RunFilter{Pipeline: "quick", Status: domain.RunStatusFailed, Limit: 1}, history.filter)
}

func TestGetRun_ActiveStats(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.do(t, http.MethodPost, "/api/v1/runs", CreateRunRequest{Pipeline: "blocking", Ref: "refs/heads/main"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeData[RunResponse](t, resp)

	require.Eventually(t, func() bool {
		stats, ok := f.orch.GetActiveRunStats(created.ID)
		return ok && stats.Running == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+created.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeData[RunResponse](t, resp)
	assert.True(t, got.Active)
	require.NotNil(t, got.Jobs)
	assert.Equal(t, JobCounts{Total: 1, Running: 1}, *got.Jobs)

	close(f.release)
	f.wait(t, created.ID)

	resp = f.do(t, http.MethodGet, "/api/v1/runs/"+created.ID.String(), nil, nil)
	got = decodeData[RunResponse](t, resp)
	assert.False(t, got.Active)
	assert.Equal(t, JobCounts{Total: 1, Succeeded: 1}, *got.Jobs)
}

type fakeSchedules []scheduler.Schedule

func (f fakeSchedules) Schedules() []scheduler.Schedule { return f }

func TestListSchedules(t *testing.T) {
	next := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	f := newFixture(t, Config{Schedules: fakeSchedules{
		{Name: "nightly", Cron: "0 3 * * *", Pipeline: "quick", Trigger: domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/main"}, NextDueAt: next},
		{Name: "weekly", Cron: "@weekly", Pipeline: "other", NextDueAt: next},
	}})

	resp := f.do(t, http.MethodGet, "/api/v1/schedules?pipeline=quick", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	schedules := decodeData[[]ScheduleResponse](t, resp)
	require.Len(t, schedules, 1)
	assert.Equal(t, "nightly", schedules[0].Name)
	assert.Equal(t, "refs/heads/main", schedules[0].Ref)
	assert.True(t, next.Equal(schedules[0].NextDueAt))
}

// syncBuffer — буфер для логов, в который пишут несколько горутин.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records возвращает JSON-записи лога с указанным msg.
func (b *syncBuffer) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func TestRecovery(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	h := Chain(Logging(logger), Recovery(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	panics := logs.records(t, "panic recovered")
	require.Len(t, panics, 1)
	assert.Equal(t, "req-42", panics[0]["request_id"])

	done := logs.records(t, "http request")
	require.Len(t, done, 1)
	assert.Equal(t, "ERROR", done[0]["level"])
	assert.EqualValues(t, 500, done[0]["status"])
}

func TestLogging_RequestScopedLogger(t *testing.T) {
	logs := &syncBuffer{}
	f := newFixture(t, Config{Logger: slog.New(slog.NewJSONHandler(logs, nil))})

	resp := f.do(t, http.MethodPost, "/api/v1/runs", CreateRunRequest{Pipeline: "quick", Ref: "refs/heads/main"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	requestID := resp.Header.Get(HeaderRequestID)
	require.NotEmpty(t, requestID, "request id is generated when absent")
	f.wait(t, decodeData[RunResponse](t, resp).ID)

	created := logs.records(t, "run created")
	require.Len(t, created, 1)
	assert.Equal(t, requestID, created[0]["request_id"])
	assert.Equal(t, "/api/v1/runs", created[0]["path"])
	assert.Equal(t, "quick", created[0]["pipeline"])
}

func TestStatusLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, statusLevel(http.StatusOK))
	assert.Equal(t, slog.LevelWarn, statusLevel(http.StatusNotFound))
	assert.Equal(t, slog.LevelError, statusLevel(http.StatusServiceUnavailable))
}
