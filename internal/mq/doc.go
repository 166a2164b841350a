// Package mq связывает API, планировщик и воркеры через RabbitMQ.
//
// Сообщения:
//   - run.requested   — новый run ждёт воркера (API, планировщик → воркер)
//   - item.completed  — item получил результат (воркер → подписчики)
//   - run.finished    — run завершён (воркер → подписчики)
//
// Топология:
//
//	recital.runs (direct)
//	└── runs.requested [routing: requested]  → воркеры, DLQ: dlq.runs
//	recital.events (topic)
//	└── runs.finished  [routing: run.finished]
//	recital.dlq (direct)
//	└── dlq.runs       [routing: runs]
//
// item.completed публикуется в recital.events без собственной очереди:
// подписчики привязывают к exchange свои очереди по "item.*".
//
// Потеря сообщения не теряет run: воркер дополнительно опрашивает
// PENDING runs в БД.
package mq
