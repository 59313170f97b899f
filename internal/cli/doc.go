// Package cli реализует инструмент командной строки Shipyard.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально: validate, plan и run читают pipeline-файл и выполняют его
//     в процессе (orchestrator, runner и Release Gate без сервера);
//   - удалённо: trigger, runs, status, jobs, cancel, pipelines и schedules
//     обращаются к shipyard-server по HTTP, events читает события из RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Shipyard API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Типы ответов дублируются из internal/api.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Status: "FAILED"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: shipyard runs --json | jq .
//
// ## Commands
//
// Каждая команда создаётся фабричной функцией (NewRunCmd, NewTriggerCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
