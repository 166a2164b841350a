// Package repo хранит runs, результаты item'ов и расписания в PostgreSQL.
//
// Таблицы создаются EnsureSchema (schema.sql встроен в бинарь):
//
//	recital_runs       — run: статус, RunSpec, items, счётчики
//	recital_items      — по строке на ProcessingResult (run_id, item_id)
//	recital_schedules  — расписания повторных run
//
// Репозитории работают с *pgxpool.Pool и возвращают ErrNotFound,
// ErrAlreadyExists и ErrInvalidState вместо ошибок драйвера там,
// где вызывающему важна причина.
package repo
