// Package encoder переводит промежуточный WAV в итоговый артефакт.
//
// Варианты:
//   - ffmpeg — внешний ffmpeg (по умолчанию libmp3lame -q:a 3, .mp3)
//   - wav    — промежуточный файл становится артефактом как есть
//
// Encode всегда удаляет промежуточный файл, и при успехе, и при ошибке.
// Итоговый файл появляется атомарно: либо целиком, либо никак.
package encoder
