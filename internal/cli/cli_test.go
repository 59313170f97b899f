package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/mq"
)

const shipPipeline = `
name: ship
jobs:
  - name: build
    matrix: [linux, darwin]
    steps:
      - action: package
        params:
          content: "bin-{{ .Matrix }}"
      - action: upload-artifact
        params:
          name: app.tar.gz
  - name: release
    depends_on: [build]
    steps:
      - action: release
        params:
          artifact: app.tar.gz
`

// execute запускает команду и возвращает stdout, stderr и ошибку.
func execute(t *testing.T, jsonMode bool, build func(func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := build(func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) })
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlanCmd_JSONGolden(t *testing.T) {
	stdout, _, err := execute(t, true, NewPlanCmd, "../engine/testdata/release.yaml")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "plan_release", []byte(stdout))
}

func TestPlanCmd_Table(t *testing.T) {
	stdout, _, err := execute(t, false, NewPlanCmd, "../engine/testdata/release.yaml")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Pipeline: release")
	assert.Contains(t, stdout, "Stage 1: build")
	assert.Contains(t, stdout, "Stage 2: release")
	assert.Contains(t, stdout, "linux,macos,windows")
	assert.Contains(t, stdout, "lint:shell?")
	assert.Contains(t, stdout, "BLOCKS")
}

func TestValidateCmd(t *testing.T) {
	good := writePipeline(t, shipPipeline)
	bad := writePipeline(t, `
name: broken
jobs:
  - name: a
    depends_on: [b]
    steps:
      - action: set-output
  - name: b
    depends_on: [a]
    steps:
      - action: set-output
`)

	_, stderr, err := execute(t, false, NewValidateCmd, good)
	require.NoError(t, err)
	assert.Contains(t, stderr, "ok (ship, 2 jobs)")

	_, stderr, err = execute(t, false, NewValidateCmd, good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, stderr, bad)
}

func TestRunCmd_TagPublishesRelease(t *testing.T) {
	path := writePipeline(t, shipPipeline)

	stdout, _, err := execute(t, false, NewRunCmd, path, "--ref", "refs/tags/v1.2.0")
	require.NoError(t, err)

	assert.Contains(t, stdout, "SUCCEEDED")
	assert.Contains(t, stdout, "Release: PUBLISHED v1.2.0")
	assert.Contains(t, stdout, "darwin")
}

func TestRunCmd_BranchSkipsRelease(t *testing.T) {
	path := writePipeline(t, shipPipeline)

	stdout, _, err := execute(t, true, NewRunCmd, path)
	require.NoError(t, err)

	var run domain.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &run))
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Equal(t, domain.EventPush, run.Trigger.Event)
	require.NotNil(t, run.Release)
	assert.Equal(t, domain.ReleaseStateSkipped, run.Release.State)
	assert.Len(t, run.Jobs, 3)
}

func TestRunCmd_FailedRunReturnsError(t *testing.T) {
	path := writePipeline(t, `
name: failing
jobs:
  - name: build
    steps:
      - action: set-output
        params:
          exit_code: "3"
  - name: deploy
    depends_on: [build]
    steps:
      - action: set-output
`)

	stdout, _, err := execute(t, false, NewRunCmd, path)
	require.ErrorIs(t, err, ErrRunNotSucceeded)
	assert.Contains(t, stdout, "FAILED")
	assert.Contains(t, stdout, "SKIPPED")
}

func TestRunCmd_EnvFlag(t *testing.T) {
	path := writePipeline(t, `
name: env
jobs:
  - name: build
    steps:
      - id: name
        action: set-output
        params:
          file: "app-{{ .Env.CHANNEL }}"
`)

	stdout, _, err := execute(t, true, NewRunCmd, path, "--env", "CHANNEL=beta")
	require.NoError(t, err)

	var run domain.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &run))
	require.Len(t, run.Jobs, 1)
	require.Len(t, run.Jobs[0].StepResults, 1)
	assert.Equal(t, "app-beta", run.Jobs[0].StepResults[0].Outputs["file"])

	_, _, err = execute(t, true, NewRunCmd, path)
	require.ErrorIs(t, err, ErrRunNotSucceeded)
}

func TestResolveEvent(t *testing.T) {
	tests := []struct {
		event string
		ref   string
		want  domain.EventKind
	}{
		{"", "refs/tags/v1.0.0", domain.EventTag},
		{"", "refs/heads/main", domain.EventPush},
		{"pull_request", "refs/pull/7/head", domain.EventPullRequest},
	}
	for _, tt := range tests {
		got, err := resolveEvent(tt.event, tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := resolveEvent("merge", "refs/heads/main")
	assert.Error(t, err)
}

func TestClient_RunsAndErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		var req CreateRunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": RunResponse{
			ID:        "r1",
			Pipeline:  req.Pipeline,
			EventKind: req.EventKind,
			Ref:       req.Ref,
			Status:    "PENDING",
		}})
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ship", r.URL.Query().Get("pipeline"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":  []RunResponse{{ID: "r1", Pipeline: "ship", Status: "SUCCEEDED"}},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"run not found"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL)

	run, err := client.CreateRun(CreateRunRequest{Pipeline: "ship", EventKind: "tag", Ref: "refs/tags/v1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "r1", run.ID)
	assert.Equal(t, "tag", run.EventKind)

	runs, err := client.ListRuns(ListRunsOpts{Pipeline: "ship"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "SUCCEEDED", runs[0].Status)

	_, err = client.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 3, 10, 12, 0, 5, 0, time.UTC)

	msg := &mq.Message{
		Type:      mq.MessageTypeJobFinished,
		Timestamp: ts,
		Payload: mq.JobEventPayload{
			RunID:      uuid.New(),
			Job:        "build",
			Label:      "linux",
			Status:     "SKIPPED",
			SkipReason: "dependency build failed",
		},
	}
	line := formatEvent(msg)
	assert.Contains(t, line, "12:00:05")
	assert.Contains(t, line, "job=build label=linux status=SKIPPED")
	assert.Contains(t, line, `reason="dependency build failed"`)

	msg = &mq.Message{
		Type:      mq.MessageTypeReleaseFinished,
		Timestamp: ts,
		Payload:   mq.ReleaseEventPayload{RunID: uuid.New(), State: "PUBLISHED", Tag: "v1.0.0"},
	}
	assert.Contains(t, formatEvent(msg), "state=PUBLISHED tag=v1.0.0")
}
