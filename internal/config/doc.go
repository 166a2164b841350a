// Package config загружает конфигурацию Recital.
//
// Источники в порядке приоритета:
//   - явный путь (--config)
//   - ./recital.yaml
//   - ~/.config/recital/config.yaml
//   - значения по умолчанию
//
// Поверх файла применяются переменные окружения:
//
//	DB_URL           — PostgreSQL DSN
//	RABBITMQ_URL     — AMQP URL
//	API_PORT         — порт HTTP API
//	RECITAL_API_URL  — адрес API для CLI
//	RECITAL_OUTPUT   — каталог артефактов
//
// Пример файла:
//
//	engine:
//	  variant: piper
//	  model: en_US-amy-medium.onnx
//	  params:
//	    length_scale: 1.2
//	strategy:
//	  kind: pool
//	  concurrency: 0   # 0 — по числу CPU
//	encoder:
//	  kind: ffmpeg
//	  quality: 3
//	output:
//	  dir: snd
package config
