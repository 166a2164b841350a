// Package orchestrator прогоняет набор WorkItem через движок и энкодер.
//
// Стратегии:
//   - pool       — C воркеров, у каждого свой Handle движка, item'ы раздаются
//     через небуферизованный канал (не больше C item'ов в работе)
//   - microbatch — один Handle, последовательные вызовы SynthesizeBatch
//     по непрерывным кускам до B item'ов, кодирование идёт параллельно
//     со следующим батчем
//
// На каждый item возвращается ровно один ProcessingResult. Ошибки item'а
// (синтез, запись, кодирование, паника) остаются на границе item'а.
// Фатальные ошибки (конфигурация, Init движка) прерывают run без результатов.
package orchestrator
