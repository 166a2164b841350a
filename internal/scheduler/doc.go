// Package scheduler создаёт runs по расписаниям.
//
// Schedule описывает повторную озвучку TSV-словаря: каждый тик, когда
// next_due_at наступил, Scheduler создаёт PENDING run с RunSpec
// расписания и публикует run.requested. Воркер перечитывает Source
// в момент выполнения, поэтому новые строки словаря попадают
// в ближайший run.
//
// Структура:
//   - scheduler.go — Tick, processSchedule, ключ идемпотентности
//   - cron.go      — cron-выражения и вычисление следующего запуска
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: scheduleRepo,
//	    Runs:      runRepo,
//	    Publisher: publisher, // опционально
//	    Logger:    logger,
//	})
//
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader election делается в cmd/recital-scheduler через
// pg_try_advisory_lock: Tick вызывает только лидер.
package scheduler
