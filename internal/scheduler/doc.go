// Package scheduler запускает pipeline по cron-расписаниям.
//
// Scheduler периодически проверяет расписания с истекшим NextDueAt
// и отправляет новые runs в Orchestrator.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: cfg.Schedules,
//	    Pipelines: engine.NewCatalog(cfg.PipelineDirOrDefault(), registry.Has),
//	    Submitter: orch,
//	    Logger:    logger,
//	})
//
//	go sched.Run(ctx) // тик раз в секунду
//
// Расписания живут в памяти процесса: после рестарта NextDueAt
// вычисляется заново от текущего времени, пропущенные запуски не догоняются.
package scheduler
