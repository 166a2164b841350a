// Package engine содержит адаптеры TTS-движков.
//
// Включает:
//   - engine.go    — интерфейсы Adapter, Handle, BatchHandle и Config
//   - registry.go  — реестр вариантов движка
//   - factory.go   — фабрика, создающая Handle для конкретной конфигурации
//   - tone.go      — синтетический движок (синусоида), для тестов и dry-run
//   - piper.go     — локальная модель Piper в долгоживущем процессе
//   - kokoro.go    — OpenAI-совместимый HTTP сервер (/v1/audio/speech)
//   - batchhttp.go — HTTP сервер с пакетным инференсом
//
// Handle дорого создавать (загрузка модели), поэтому оркестратор
// создаёт его один раз на воркер и переиспользует для всех item'ов.
package engine
