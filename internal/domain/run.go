package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunSpec — параметры выполнения run. Фиксируются на весь run.
//
// Items передаются либо явно (Run.Items), либо через Source — путь к TSV
// на хосте воркера, который читается в момент выполнения.
type RunSpec struct {
	// EngineVariant — вариант движка синтеза ("piper", "kokoro", ...).
	EngineVariant string `json:"engine_variant"`

	// ModelRef — ссылка на модель (путь или имя).
	ModelRef string `json:"model_ref,omitempty"`

	// EngineParams — дополнительные параметры движка.
	EngineParams map[string]any `json:"engine_params,omitempty"`

	// Strategy — "pool" или "microbatch".
	Strategy string `json:"strategy"`

	// Concurrency — число воркеров для pool (0 — по числу CPU).
	Concurrency int `json:"concurrency,omitempty"`

	// BatchSize — размер батча для microbatch.
	BatchSize int `json:"batch_size,omitempty"`

	// OutputDir — каталог для артефактов.
	OutputDir string `json:"output_dir"`

	// Source — путь к TSV файлу с items.
	Source string `json:"source,omitempty"`
}

// Run — один запуск пакетной обработки.
//
// Run создаётся когда:
// - Пользователь запускает обработку через CLI (`recital run`)
// - Клиент отправляет items через API (`POST /api/v1/runs`)
// - Планировщик создаёт run по расписанию
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	RunSpec

	// Items — входные данные run (пусто, если задан Source и run ещё не начат).
	Items []WorkItem `json:"items,omitempty"`

	// Total, Succeeded, Failed — счётчики результатов.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// ScheduleID — расписание, создавшее run.
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`

	// IdempotencyKey — ключ для защиты от дублей (расписание + время).
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст фатальной ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(spec RunSpec, items []WorkItem) *Run {
	return &Run{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		RunSpec:   spec,
		Items:     items,
		Total:     len(items),
		CreatedAt: time.Now().UTC(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED и сохраняет счётчики.
func (r *Run) MarkSucceeded(s Summary) {
	now := time.Now().UTC()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
	r.Total = s.Total
	r.Succeeded = s.Succeeded
	r.Failed = s.Failed
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
// Счётчики сохраняются: часть item'ов могла успеть обработаться.
func (r *Run) MarkCancelled(s Summary) {
	now := time.Now().UTC()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
	r.Total = s.Total
	r.Succeeded = s.Succeeded
	r.Failed = s.Failed
}
