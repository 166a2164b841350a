// Package cli реализует команды утилиты recital.
//
// # Режимы
//
// Локальный: `recital run` читает TSV, собирает конвейер из конфигурации
// (internal/config) и выполняет run в текущем процессе. Сервер не нужен.
//
// Серверный: submit, runs, schedule и engines --remote обращаются к API
// через Client. Типы ответов дублируют api/dto.go, пакет internal/api
// не импортируется.
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения и прогресс в stderr:
//
//	recital runs list --json | jq '.[].id'
//
// # Коды выхода
//
// Команды возвращают *ExitError, main завершает процесс с его кодом:
// 0 все item'ы успешны, 2 run завершён с упавшими item'ами,
// 1 run не выполнен или отменён.
//
// Группы команд создаются фабриками (NewRunCmd, NewRunsCmd и т.д.),
// которые принимают clientFn и outputFn. Client и Output создаются
// лениво, после парсинга PersistentFlags.
package cli
