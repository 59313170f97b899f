// Shipyard CLI — инструмент командной строки для запуска pipeline
// локально и через HTTP API сервера.
//
// Использование:
//
//	shipyard [--api-url URL] [--json] [--amqp-url URL] <command> [flags]
//
// Локальные команды:
//
//	run       Выполнить pipeline файл в текущем процессе
//	validate  Проверить pipeline файлы
//	plan      Показать план выполнения
//
// Команды сервера:
//
//	pipelines  Список pipeline
//	trigger    Запустить run
//	runs       Список runs
//	status     Статус run
//	jobs       Экземпляры job run
//	cancel     Отменить run
//	schedules  Список расписаний
//	events     События из RabbitMQ
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Shipyard/internal/cli"
	"github.com/shaiso/Shipyard/internal/mq"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var amqpURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "shipyard",
		Short:         "Shipyard CLI — pipelines with gated releases",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", mq.DefaultURL(), "RabbitMQ URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	amqpURLFn := func() string { return amqpURL }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewPlanCmd(outputFn),
		cli.NewPipelinesCmd(clientFn, outputFn),
		cli.NewTriggerCmd(clientFn, outputFn, amqpURLFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewJobsCmd(clientFn, outputFn),
		cli.NewCancelCmd(clientFn, outputFn),
		cli.NewSchedulesCmd(clientFn, outputFn),
		cli.NewEventsCmd(outputFn, amqpURLFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
