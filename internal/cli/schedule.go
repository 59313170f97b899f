package cli

import (
	"github.com/spf13/cobra"
)

// NewPipelinesCmd создаёт команду списка pipeline на сервере.
func NewPipelinesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List pipelines known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			names, err := client.ListPipelines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(names))
			for i, n := range names {
				rows[i] = []string{n}
			}

			out.Print([]string{"PIPELINE"}, rows, names)
			return nil
		},
	}
}

// NewSchedulesCmd создаёт команду списка расписаний.
func NewSchedulesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipeline string

	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules(pipeline)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CRON", "PIPELINE", "REF", "NEXT_DUE", "LAST_RUN"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{s.Name, s.Cron, s.Pipeline, s.Ref, s.NextDueAt, s.LastRunID}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline")

	return cmd
}
