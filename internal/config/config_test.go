package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Shipyard/internal/config"
)

// clearEnv сбрасывает переменные, которые переопределяют файл.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_URL", "RABBITMQ_URL", "LOG_LEVEL", "LOG_FORMAT", "SHIPYARD_ADDR", "GITHUB_TOKEN"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shipyard.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
publisher = "github"

[server]
addr = ":9090"
shutdown_timeout = "30s"

[orchestrator]
max_parallel = 8
tag_prefix = "refs/tags/release-"

[artifacts]
backend = "sqlite"
path = "/var/lib/shipyard/artifacts.db"

[github]
owner = "acme"
repo = "app"
token = "ghp_fromfile"
webhook_pipeline = "shipyard"

[[schedules]]
name = "nightly"
cron = "0 3 * * *"
pipeline = "shipyard"
ref = "refs/heads/main"

[[schedules]]
name = "weekly"
cron = "@weekly"
pipeline = "shipyard"
enabled = false
`)

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.AddrOrDefault(); got != ":9090" {
		t.Errorf("expected addr ':9090', got '%s'", got)
	}
	if got := cfg.ShutdownTimeoutOrDefault(); got != 30*time.Second {
		t.Errorf("expected shutdown timeout 30s, got %v", got)
	}
	if got := cfg.MaxParallelOrDefault(); got != 8 {
		t.Errorf("expected max_parallel 8, got %d", got)
	}
	if got := cfg.TagPrefixOrDefault(); got != "refs/tags/release-" {
		t.Errorf("expected tag prefix 'refs/tags/release-', got '%s'", got)
	}
	if got := cfg.ArtifactBackendOrDefault(); got != config.BackendSQLite {
		t.Errorf("expected sqlite backend, got '%s'", got)
	}
	if cfg.GitHub.Token != "ghp_fromfile" {
		t.Errorf("expected token from file, got '%s'", cfg.GitHub.Token)
	}
	if cfg.GitHub.WebhookPipeline != "shipyard" {
		t.Errorf("expected webhook pipeline 'shipyard', got '%s'", cfg.GitHub.WebhookPipeline)
	}
	if len(cfg.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(cfg.Schedules))
	}
	if !cfg.Schedules[0].IsEnabled() {
		t.Error("schedule without enabled must be enabled")
	}
	if cfg.Schedules[1].IsEnabled() {
		t.Error("schedule with enabled = false must be disabled")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.LoadFrom(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.AddrOrDefault(); got != ":8080" {
		t.Errorf("expected default addr, got '%s'", got)
	}
	if got := cfg.ShutdownTimeoutOrDefault(); got != 10*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", got)
	}
	if got := cfg.MaxParallelOrDefault(); got != 4 {
		t.Errorf("expected default max_parallel 4, got %d", got)
	}
	if got := cfg.MaxHistoryOrDefault(); got != 100 {
		t.Errorf("expected default max_history 100, got %d", got)
	}
	if got := cfg.TagPrefixOrDefault(); got != "refs/tags/v" {
		t.Errorf("expected default tag prefix, got '%s'", got)
	}
	if got := cfg.ArtifactBackendOrDefault(); got != config.BackendMemory {
		t.Errorf("expected memory backend, got '%s'", got)
	}
	if got := cfg.PublisherOrDefault(); got != config.PublisherMemory {
		t.Errorf("expected memory publisher, got '%s'", got)
	}
	if got := cfg.PipelineDirOrDefault(); got != "pipelines" {
		t.Errorf("expected default pipeline dir, got '%s'", got)
	}
}

func TestLoad_EnvVarsTakePrecedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
addr = ":9090"

[database]
url = "postgres://file"

[github]
token = "ghp_fromfile"
`)

	t.Setenv("SHIPYARD_ADDR", ":7070")
	t.Setenv("DB_URL", "postgres://env")
	t.Setenv("RABBITMQ_URL", "amqp://env")
	t.Setenv("GITHUB_TOKEN", "ghp_fromenv")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AddrOrDefault() != ":7070" {
		t.Errorf("expected env addr, got '%s'", cfg.AddrOrDefault())
	}
	if cfg.Database.URL != "postgres://env" {
		t.Errorf("expected env DB url, got '%s'", cfg.Database.URL)
	}
	if cfg.RabbitMQ.URL != "amqp://env" {
		t.Errorf("expected env RabbitMQ url, got '%s'", cfg.RabbitMQ.URL)
	}
	if cfg.GitHub.Token != "ghp_fromenv" {
		t.Errorf("expected env token, got '%s'", cfg.GitHub.Token)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("expected env log settings, got %+v", cfg.Log)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_onlyenv")

	cfg, err := config.LoadFrom("/nonexistent/path/shipyard.toml")
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if cfg.GitHub.Token != "ghp_onlyenv" {
		t.Errorf("expected token from env, got '%s'", cfg.GitHub.Token)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[server]\nport = 8080\n"},
		{"unknown backend", "[artifacts]\nbackend = \"s3\"\n"},
		{"unknown publisher", "publisher = \"gitlab\"\n"},
		{"postgres without url", "publisher = \"postgres\"\n"},
		{"github without repo", "publisher = \"github\"\n[github]\nowner = \"acme\"\n"},
		{"bad timeout", "[server]\nshutdown_timeout = \"soon\"\n"},
		{"schedule without name", "[[schedules]]\ncron = \"@daily\"\npipeline = \"p\"\n"},
		{"schedule without cron", "[[schedules]]\nname = \"n\"\npipeline = \"p\"\n"},
		{"duplicate schedule", "[[schedules]]\nname = \"n\"\ncron = \"@daily\"\npipeline = \"p\"\n[[schedules]]\nname = \"n\"\ncron = \"@daily\"\npipeline = \"p\"\n"},
		{"broken toml", "[server\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := config.LoadFrom(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
