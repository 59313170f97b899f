package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/mq"
)

// runHeaders — колонки таблицы runs.
var runHeaders = []string{"ID", "PIPELINE", "EVENT", "REF", "STATUS", "RELEASE", "CREATED"}

func runRow(r *RunResponse) []string {
	rel := ""
	if r.Release != nil {
		rel = r.Release.State
		if r.Release.Tag != "" {
			rel += " " + r.Release.Tag
		}
	}
	return []string{r.ID, r.Pipeline, r.EventKind, r.Ref, r.Status, rel, r.CreatedAt}
}

// NewTriggerCmd создаёт команду запуска pipeline на сервере.
//
// С --amqp запрос публикуется в очередь runs.requested, и run создаёт
// тот сервер, который её слушает.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output, amqpURLFn func() string) *cobra.Command {
	var event string
	var viaAMQP bool
	var wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "trigger PIPELINE REF",
		Short: "Start a pipeline run on the server",
		Long: `Start a pipeline run on the server.

The event kind is derived from the ref unless --event is given:
refs/tags/* is a tag event, anything else is a push.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			pipeline, ref := args[0], args[1]

			kind, err := resolveEvent(event, ref)
			if err != nil {
				return err
			}

			if viaAMQP {
				if wait {
					return fmt.Errorf("--wait is not supported with --amqp")
				}
				payload := mq.RunRequestPayload{
					Pipeline: pipeline,
					Event:    kind,
					Ref:      ref,
				}
				if err := publishRunRequest(cmd.Context(), amqpURLFn(), payload); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run requested: %s @ %s", pipeline, ref))
				return nil
			}

			client := clientFn()
			run, err := client.CreateRun(CreateRunRequest{Pipeline: pipeline, EventKind: string(kind), Ref: ref})
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run started: %s", run.ID))

			if wait {
				run, err = waitRun(cmd.Context(), client, run.ID, pollInterval)
				if err != nil {
					return err
				}
			}

			out.Print(runHeaders, [][]string{runRow(run)}, run)

			if wait && run.Status != string(domain.RunStatusSucceeded) {
				return fmt.Errorf("run %s finished with %s", run.ID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "Event kind (push, pull_request, tag)")
	cmd.Flags().BoolVar(&viaAMQP, "amqp", false, "Publish the request to RabbitMQ instead of calling the API")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "Status polling interval for --wait")

	return cmd
}

// publishRunRequest публикует run.requested.
func publishRunRequest(ctx context.Context, url string, payload mq.RunRequestPayload) error {
	logger := slog.New(slog.DiscardHandler)

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	return mq.NewPublisher(conn, logger).PublishRunRequested(ctx, payload)
}

// waitRun опрашивает сервер, пока run не завершится.
func waitRun(ctx context.Context, client *Client, id string, interval time.Duration) (*RunResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := client.GetRun(id)
		if err != nil {
			return nil, err
		}
		if domain.RunStatus(run.Status).IsTerminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewRunsCmd создаёт команду списка runs.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipeline string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				Pipeline: pipeline,
				Status:   status,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i := range runs {
				rows[i] = runRow(&runs[i])
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

// NewStatusCmd создаёт команду просмотра run.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "PIPELINE", "REF", "STATUS", "JOBS", "DURATION", "ERROR"},
				[][]string{{run.ID, run.Pipeline, run.Ref, run.Status, formatJobCounts(run), formatMs(run.DurationMs), run.Error}},
				run,
			)
			return nil
		},
	}
}

// formatJobCounts — сводка экземпляров; для активного run добавляются queued/running.
func formatJobCounts(run *RunResponse) string {
	if run.Jobs == nil {
		return ""
	}
	c := run.Jobs
	s := fmt.Sprintf("%d/%d ok, %d failed, %d skipped", c.Succeeded, c.Total, c.Failed, c.Skipped)
	if run.Active {
		s += fmt.Sprintf(", %d running, %d queued", c.Running, c.Queued)
	}
	return s
}

// NewJobsCmd создаёт команду списка экземпляров run.
func NewJobsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs RUN_ID",
		Short: "List job instances of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(args[0])
			if err != nil {
				return err
			}

			headers := []string{"JOB", "LABEL", "STATUS", "STEPS", "DURATION", "DETAIL"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				detail := j.Error
				if j.SkipReason != "" {
					detail = j.SkipReason
				}
				rows[i] = []string{j.Job, j.Label, j.Status, strconv.Itoa(len(j.Steps)), formatMs(j.DurationMs), detail}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

// NewCancelCmd создаёт команду отмены run.
func NewCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancellation requested: %s", run.ID))
			return nil
		},
	}
}

// formatMs форматирует длительность в миллисекундах.
func formatMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}
