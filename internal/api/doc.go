// Package api содержит HTTP API shipyard-server.
//
// Структура:
//   - handler.go          — Handler с DI (orchestrator, каталог pipeline, журнал, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - run_handler.go      — обработчики для /runs и /pipelines
//   - webhook_handler.go  — GitHub webhook (push, pull_request)
//   - schedule_handler.go — обработчики для /schedules
//
// API позволяет запускать runs, смотреть их состояние и отменять их.
package api
