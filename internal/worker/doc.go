// Package worker выполняет runs, созданные через API или планировщиком.
//
// # Обзор
//
// Worker — stateless компонент, который:
//
//   - получает run.requested из очереди RabbitMQ (event-driven)
//   - периодически забирает PENDING runs из БД (polling fallback)
//   - атомарно переводит run в RUNNING (Claim), чтобы два воркера
//     не взяли один run
//   - читает items из run или из TSV по RunSpec.Source
//   - собирает orchestrator из базовой конфигурации и RunSpec
//   - сохраняет результаты item'ов и итоговый статус run
//   - публикует item.completed и run.finished
//
// Воркеры масштабируются горизонтально. Один воркер выполняет один
// run за раз.
//
// # Статусы
//
//	PENDING → RUNNING → SUCCEEDED   все item'ы получили результат
//	                  → FAILED      конфигурация, source, загрузка модели
//	                  → CANCELLED   отмена через API или остановка воркера
//
// Упавшие item'ы не делают run FAILED: они видны в счётчиках
// и в recital_items.
//
// # Отмена
//
// API переводит run в CANCELLED. Воркер замечает это опросом статуса
// (CancelCheckInterval), отменяет контекст orchestrator'а и сохраняет
// частичные результаты: не начатые item'ы получают Failure с этапом
// cancelled.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Runs:      repo.NewRunRepo(pool),
//	    Items:     repo.NewItemRepo(pool),
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Base:      cfg,
//	    Metrics:   metrics,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package worker
