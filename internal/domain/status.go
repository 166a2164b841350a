package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
//
// SUCCEEDED означает, что каждый item получил результат. Отдельные
// item'ы при этом могут быть FAILED — это видно по счётчикам run.
// FAILED — только фатальные ошибки (конфигурация, загрузка модели).
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все item'ы получили результат.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run прерван фатальной ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Outcome — исход обработки одного item.
type Outcome string

const (
	// OutcomeSuccess — артефакт записан.
	OutcomeSuccess Outcome = "SUCCEEDED"

	// OutcomeFailure — item не обработан, артефакта нет.
	OutcomeFailure Outcome = "FAILED"
)

// Stage — этап обработки item, на котором произошла ошибка.
type Stage string

const (
	StageSynthesize Stage = "synthesize"
	StageWrite      Stage = "write"
	StageEncode     Stage = "encode"
	StageCancelled  Stage = "cancelled"
	StagePanic      Stage = "panic"
)
