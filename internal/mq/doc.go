// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - notifier.go   — события жизненного цикла runs для оркестратора
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.requested    — внешний запрос на запуск pipeline
//   - run.started      — run перешёл в RUNNING
//   - run.finished     — run завершён
//   - job.finished     — экземпляр job завершён или пропущен
//   - release.finished — итог Release Gate
//
// Exchanges:
//   - shipyard.runs    — запросы на запуск (direct)
//   - shipyard.events  — события жизненного цикла (topic)
//   - shipyard.dlq     — dead letter queue
package mq
