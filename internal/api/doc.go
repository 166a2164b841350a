// Package api содержит HTTP API сервер Recital.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, publisher, реестр движков, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, prometheus)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - run_handler.go      — обработчики для /runs
//   - engine_handler.go   — обработчик для /engines
//   - schedule_handler.go — обработчики для /schedules
//
// API принимает пакеты текстов (или путь к TSV на стороне воркера),
// сохраняет run в PENDING и публикует run.requested. Выполняет run воркер.
package api
