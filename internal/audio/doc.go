// Package audio содержит представление синтезированного звука и работу с WAV.
//
// Движки синтеза возвращают Audio (16-bit PCM), оркестратор записывает его
// во временный WAV-файл (промежуточный артефакт), который затем
// конвертирует и удаляет encoder.
package audio
