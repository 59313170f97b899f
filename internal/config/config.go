// Package config загружает конфигурацию shipyard-server из TOML файла.
//
// Переменные окружения имеют приоритет над значениями из файла:
//   - DB_URL        → database.url
//   - RABBITMQ_URL  → rabbitmq.url
//   - LOG_LEVEL     → log.level
//   - LOG_FORMAT    → log.format
//   - SHIPYARD_ADDR → server.addr
//   - GITHUB_TOKEN  → github.token
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Значения по умолчанию.
const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxParallel     = 4
	defaultMaxHistory      = 100
	defaultTagPrefix       = "refs/tags/v"
	defaultArtifactBackend = BackendMemory
	defaultArtifactPath    = "shipyard-artifacts.db"
	defaultPublisher       = PublisherMemory
	defaultPipelineDir     = "pipelines"
)

// Backend хранилища артефактов.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Куда публикуются релизы.
const (
	PublisherMemory   = "memory"
	PublisherPostgres = "postgres"
	PublisherGitHub   = "github"
)

// ServerConfig — HTTP сервер.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// ShutdownTimeout — например "15s".
	ShutdownTimeout string `toml:"shutdown_timeout"`

	// PipelineDir — директория с pipeline-файлами (<name>.yaml).
	PipelineDir string `toml:"pipeline_dir"`
}

// OrchestratorConfig — параметры выполнения runs.
type OrchestratorConfig struct {
	MaxParallel int    `toml:"max_parallel"`
	MaxHistory  int    `toml:"max_history"`
	TagPrefix   string `toml:"tag_prefix"`
	WorkDir     string `toml:"work_dir"`
}

// ArtifactsConfig — хранилище артефактов.
type ArtifactsConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// DatabaseConfig — Postgres для журнала runs.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RabbitMQConfig — брокер событий.
type RabbitMQConfig struct {
	URL string `toml:"url"`
}

// GitHubConfig — публикация релизов и webhook.
type GitHubConfig struct {
	Owner         string `toml:"owner"`
	Repo          string `toml:"repo"`
	Token         string `toml:"token"`
	WebhookSecret string `toml:"webhook_secret"`

	// WebhookPipeline — pipeline для webhook без ?pipeline=.
	WebhookPipeline string `toml:"webhook_pipeline"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Schedule — cron-расписание запуска pipeline.
type Schedule struct {
	Name     string `toml:"name"`
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
	Pipeline string `toml:"pipeline"`
	Ref      string `toml:"ref"`
	Event    string `toml:"event"`
	Enabled  *bool  `toml:"enabled"`
}

// IsEnabled возвращает true, если расписание не выключено явно.
func (s Schedule) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config — вся конфигурация shipyard-server.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Artifacts    ArtifactsConfig    `toml:"artifacts"`
	Database     DatabaseConfig     `toml:"database"`
	RabbitMQ     RabbitMQConfig     `toml:"rabbitmq"`
	GitHub       GitHubConfig       `toml:"github"`
	Log          LogConfig          `toml:"log"`
	Publisher    string             `toml:"publisher"`
	Schedules    []Schedule         `toml:"schedules"`
}

// LoadFrom читает конфигурацию из TOML файла.
// Отсутствующий файл не является ошибкой: возвращается пустая конфигурация.
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			md, err := toml.DecodeFile(path, &cfg)
			if err != nil {
				return Config{}, fmt.Errorf("decode %s: %w", path, err)
			}
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
			}
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить умолчаниями.
func (c Config) Validate() error {
	switch c.ArtifactBackendOrDefault() {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("artifacts.backend: unknown backend %q", c.Artifacts.Backend)
	}

	switch c.PublisherOrDefault() {
	case PublisherMemory:
	case PublisherPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("publisher %q requires database.url", PublisherPostgres)
		}
	case PublisherGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return fmt.Errorf("publisher %q requires github.owner and github.repo", PublisherGitHub)
		}
	default:
		return fmt.Errorf("publisher: unknown publisher %q", c.Publisher)
	}

	if c.Server.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
			return fmt.Errorf("server.shutdown_timeout: %w", err)
		}
	}

	names := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Cron == "" || s.Pipeline == "" {
			return fmt.Errorf("schedule %q: cron and pipeline are required", s.Name)
		}
	}
	return nil
}

// AddrOrDefault возвращает адрес HTTP сервера.
func (c Config) AddrOrDefault() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return defaultAddr
}

// ShutdownTimeoutOrDefault возвращает таймаут graceful shutdown.
func (c Config) ShutdownTimeoutOrDefault() time.Duration {
	if d, err := time.ParseDuration(c.Server.ShutdownTimeout); err == nil && d > 0 {
		return d
	}
	return defaultShutdownTimeout
}

// PipelineDirOrDefault возвращает директорию pipeline-файлов.
func (c Config) PipelineDirOrDefault() string {
	if c.Server.PipelineDir != "" {
		return c.Server.PipelineDir
	}
	return defaultPipelineDir
}

// MaxParallelOrDefault возвращает лимит параллельных экземпляров на run.
func (c Config) MaxParallelOrDefault() int {
	if c.Orchestrator.MaxParallel > 0 {
		return c.Orchestrator.MaxParallel
	}
	return defaultMaxParallel
}

// MaxHistoryOrDefault возвращает размер истории завершённых runs.
func (c Config) MaxHistoryOrDefault() int {
	if c.Orchestrator.MaxHistory > 0 {
		return c.Orchestrator.MaxHistory
	}
	return defaultMaxHistory
}

// TagPrefixOrDefault возвращает префикс ref, включающий Release Gate.
func (c Config) TagPrefixOrDefault() string {
	if c.Orchestrator.TagPrefix != "" {
		return c.Orchestrator.TagPrefix
	}
	return defaultTagPrefix
}

// ArtifactBackendOrDefault возвращает backend хранилища артефактов.
func (c Config) ArtifactBackendOrDefault() string {
	if c.Artifacts.Backend != "" {
		return c.Artifacts.Backend
	}
	return defaultArtifactBackend
}

// ArtifactPathOrDefault возвращает путь к файлу SQLite.
func (c Config) ArtifactPathOrDefault() string {
	if c.Artifacts.Path != "" {
		return c.Artifacts.Path
	}
	return defaultArtifactPath
}

// PublisherOrDefault возвращает публикатор релизов.
func (c Config) PublisherOrDefault() string {
	if c.Publisher != "" {
		return c.Publisher
	}
	return defaultPublisher
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SHIPYARD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
}
