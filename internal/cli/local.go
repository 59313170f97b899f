package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/release"
	"github.com/shaiso/Shipyard/internal/runner"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// ErrRunNotSucceeded — локальный run завершился не SUCCEEDED.
var ErrRunNotSucceeded = errors.New("run did not succeed")

// resolveEvent возвращает тип события: явный или выведенный из ref.
func resolveEvent(event, ref string) (domain.EventKind, error) {
	if event != "" {
		return domain.ParseEventKind(event)
	}
	if strings.HasPrefix(ref, domain.RefTagsPrefix) {
		return domain.EventTag, nil
	}
	return domain.EventPush, nil
}

// localOptions — параметры локального запуска.
type localOptions struct {
	ref         string
	event       string
	maxParallel int
	artifacts   string
	workDir     string
	tagPrefix   string
	env         map[string]string
	verbose     bool
}

// localEngine — собранный для одного запуска движок.
type localEngine struct {
	registry     *runner.Registry
	orchestrator *orchestrator.Orchestrator
	publisher    *release.MemoryPublisher
	closeFn      func() error
}

// newLocalEngine собирает реестр, Release Gate и оркестратор для локального запуска.
func newLocalEngine(opts localOptions, logger *slog.Logger) (*localEngine, error) {
	var store artifact.Store
	closeFn := func() error { return nil }

	if opts.artifacts != "" {
		sqlite, err := artifact.OpenSQLite(opts.artifacts)
		if err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		store = sqlite
		closeFn = sqlite.Close
	} else {
		store = artifact.NewMemoryStore()
	}

	publisher := release.NewMemoryPublisher()
	gate := release.NewGate(release.Config{
		Publisher: publisher,
		Store:     store,
		TagPrefix: opts.tagPrefix,
		Logger:    logger,
	})

	registry := runner.DefaultRegistry(store, &runner.ExecRunner{}, nil)
	registry.Register(release.NewAction(gate))

	orch := orchestrator.New(orchestrator.Config{
		Runner: runner.New(runner.Config{
			Registry: registry,
			WorkDir:  opts.workDir,
			Env:      opts.env,
			Logger:   logger,
		}),
		MaxParallel: opts.maxParallel,
		Logger:      logger,
	})

	return &localEngine{
		registry:     registry,
		orchestrator: orch,
		publisher:    publisher,
		closeFn:      closeFn,
	}, nil
}

// NewRunCmd создаёт команду локального выполнения pipeline.
//
// Сервер не нужен: run выполняется в текущем процессе, артефакты
// хранятся в памяти или в SQLite (--artifacts), релиз публикуется
// в памяти процесса.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var opts localOptions

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a pipeline file locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			event, err := resolveEvent(opts.event, opts.ref)
			if err != nil {
				return err
			}

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger := telemetry.SetupLoggerWith(level, "text", cmd.ErrOrStderr())

			eng, err := newLocalEngine(opts, logger)
			if err != nil {
				return err
			}
			defer eng.closeFn()

			spec, err := engine.LoadWith(args[0], eng.registry.Has)
			if err != nil {
				return err
			}

			run, err := eng.orchestrator.Execute(cmd.Context(), spec, domain.Trigger{Event: event, Ref: opts.ref})
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(run)
			} else {
				printLocalRun(out, run)
			}

			if run.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("%w: %s", ErrRunNotSucceeded, run.Status)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ref, "ref", domain.RefHeadsPrefix+"main", "Git ref of the trigger")
	f.StringVar(&opts.event, "event", "", "Event kind: push, pull_request, tag (derived from ref if empty)")
	f.IntVar(&opts.maxParallel, "max-parallel", 4, "Max concurrently running job instances")
	f.StringVar(&opts.artifacts, "artifacts", "", "SQLite file for artifacts (in-memory if empty)")
	f.StringVar(&opts.workDir, "workdir", "", "Directory for per-instance workspaces")
	f.StringVar(&opts.tagPrefix, "tag-prefix", release.DefaultTagPrefix, "Ref prefix that triggers a release")
	f.StringToStringVar(&opts.env, "env", nil, "Template variables available as {{ .Env.NAME }} (NAME=VALUE)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print execution logs")

	return cmd
}

// printLocalRun печатает итог run и таблицу экземпляров.
func printLocalRun(out *Output, run *domain.Run) {
	headers := []string{"JOB", "LABEL", "STATUS", "DURATION", "DETAIL"}
	rows := make([][]string, 0, len(run.Jobs))
	for i := range run.Jobs {
		inst := &run.Jobs[i]
		detail := inst.Error
		if detail == "" {
			detail = inst.SkipReason
		}
		rows = append(rows, []string{
			inst.Template,
			inst.Label(),
			string(inst.Status),
			formatMs(inst.Duration().Milliseconds()),
			detail,
		})
	}
	out.Table(headers, rows)

	out.Line("")
	out.Line("Run %s: %s (%s)", run.ID, run.Status, formatMs(run.Duration().Milliseconds()))
	if run.Error != "" {
		out.Line("Error: %s", run.Error)
	}
	if run.Release != nil {
		line := "Release: " + string(run.Release.State)
		if run.Release.Tag != "" {
			line += " " + run.Release.Tag
		}
		if run.Release.Reason != "" {
			line += " (" + run.Release.Reason + ")"
		}
		out.Line("%s", line)
	}
}

// NewValidateCmd создаёт команду проверки pipeline файлов.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate pipeline files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			known := localRegistry().Has

			failed := 0
			for _, path := range args {
				spec, err := engine.LoadWith(path, known)
				if err == nil {
					_, err = engine.BuildPlan(spec)
				}
				if err != nil {
					failed++
					out.Error(fmt.Sprintf("%s: %v", path, err))
					continue
				}
				out.Success(fmt.Sprintf("%s: ok (%s, %d jobs)", path, spec.Name, len(spec.Jobs)))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d pipeline files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

// NewPlanCmd создаёт команду вывода плана выполнения.
func NewPlanCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "plan FILE",
		Short: "Show the execution plan of a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			spec, err := engine.LoadWith(args[0], localRegistry().Has)
			if err != nil {
				return err
			}
			plan, err := engine.BuildPlan(spec)
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(plan)
				return nil
			}
			writePlan(out, plan)
			return nil
		},
	}
}

// localRegistry — реестр действий, доступных локальному запуску.
func localRegistry() *runner.Registry {
	store := artifact.NewMemoryStore()
	reg := runner.DefaultRegistry(store, &runner.ExecRunner{}, nil)
	reg.Register(release.NewAction(release.NewGate(release.Config{
		Publisher: release.NewMemoryPublisher(),
		Store:     store,
	})))
	return reg
}

// writePlan печатает стадии и шаги плана.
func writePlan(out *Output, plan *engine.Plan) {
	out.Line("Pipeline: %s", plan.Pipeline)
	for i, stage := range plan.Stages {
		out.Line("Stage %d: %s", i+1, strings.Join(stage, ", "))
	}
	out.Line("")

	headers := []string{"JOB", "STAGE", "DEPENDS_ON", "BLOCKS", "INSTANCES", "FAIL_FAST", "STEPS"}
	rows := make([][]string, 0, len(plan.Jobs))
	for _, job := range plan.Jobs {
		steps := make([]string, 0, len(job.Steps))
		for _, s := range job.Steps {
			name := s.ID + ":" + s.Action
			if s.BestEffort {
				name += "?"
			}
			steps = append(steps, name)
		}
		rows = append(rows, []string{
			job.Name,
			strconv.Itoa(job.Stage + 1),
			joinOrDash(job.DependsOn),
			joinOrDash(job.Blocks),
			strings.Join(job.Instances, ","),
			strconv.FormatBool(job.FailFast),
			strings.Join(steps, " "),
		})
	}
	out.Table(headers, rows)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
