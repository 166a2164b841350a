package cli

import "fmt"

// Коды выхода `recital run` и `recital submit --wait`.
const (
	ExitOK          = 0
	ExitFatal       = 1 // run не выполнен: конфигурация, загрузка модели, отмена
	ExitItemsFailed = 2 // run завершён, но часть item'ов упала
)

// ExitError — ошибка с кодом выхода процесса.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func fatal(err error) error {
	return &ExitError{Code: ExitFatal, Err: err}
}
