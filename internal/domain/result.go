package domain

import "time"

// ProcessingResult — результат обработки одного WorkItem.
//
// Создаётся ровно один раз на каждый item и не повторяется автоматически.
type ProcessingResult struct {
	// ID — id исходного item.
	ID string `json:"id"`

	// Outcome — SUCCEEDED или FAILED.
	Outcome Outcome `json:"outcome"`

	// ArtifactPath — путь к итоговому файлу (только для SUCCEEDED).
	ArtifactPath string `json:"artifact_path,omitempty"`

	// Stage — этап, на котором item упал (только для FAILED).
	Stage Stage `json:"stage,omitempty"`

	// Reason — текст ошибки (только для FAILED).
	Reason string `json:"reason,omitempty"`

	// Err — исходная ошибка для errors.Is/As. Не сериализуется.
	Err error `json:"-"`

	// Duration — время обработки item.
	Duration time.Duration `json:"duration_ns"`

	// FinishedAt — время получения результата.
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded создаёт успешный результат.
func Succeeded(id, artifactPath string) ProcessingResult {
	return ProcessingResult{
		ID:           id,
		Outcome:      OutcomeSuccess,
		ArtifactPath: artifactPath,
		FinishedAt:   time.Now().UTC(),
	}
}

// Failed создаёт результат с ошибкой.
func Failed(id string, stage Stage, err error) ProcessingResult {
	r := ProcessingResult{
		ID:         id,
		Outcome:    OutcomeFailure,
		Stage:      stage,
		Err:        err,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// IsSuccess возвращает true для SUCCEEDED.
func (r ProcessingResult) IsSuccess() bool {
	return r.Outcome == OutcomeSuccess
}
