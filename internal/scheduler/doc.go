// Package scheduler запускает pipeline по расписаниям.
//
// Расписания описываются в файле (pipelinefile.ReadSchedules): cron
// ("0 3 * * *", с часовым поясом) или интервал в секундах. Scheduler
// не выполняет pipeline сам, а вызывает Trigger: в runner это
// публикация runs.requested или прямой вызов orchestrator.
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: schedules,
//	    Trigger:   trigger,
//	    State:     repo.NewScheduleStateRepo(pool), // опционально
//	    Logger:    logger,
//	})
//	go sched.Run(ctx)
//
// Leader election не реализован: запускайте один runner со scheduler,
// дубликаты запусков при этом отсекаются ключом идемпотентности.
package scheduler
