package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/orchestrator"
	"github.com/shaiso/Recital/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?status=...&schedule_id=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		Limit:  parseIntParam(r, "limit", 50),
		Offset: parseIntParam(r, "offset", 0),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.RunStatus(status)
	}

	if s := r.URL.Query().Get("schedule_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid schedule_id")
			return
		}
		filter.ScheduleID = &id
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun создаёт PENDING run и публикует run.requested.
// POST /api/v1/runs
//
// Повтор с тем же idempotency_key возвращает уже созданный run (200).
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.Items) == 0 && req.Source == "" {
		BadRequest(w, "either items or source is required")
		return
	}
	if len(req.Items) > 0 && req.Source != "" {
		BadRequest(w, "items and source are mutually exclusive")
		return
	}
	if err := domain.ValidateItems(req.Items); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := validateRunSpec(req.RunSpec, h.registry); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.IdempotencyKey != "" {
		existing, err := h.runs.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil {
			Success(w, RunFromDomain(*existing))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	run := domain.NewRun(req.RunSpec, req.Items)
	run.IdempotencyKey = req.IdempotencyKey

	if err := h.runs.Create(r.Context(), run); err != nil {
		// параллельный запрос с тем же ключом успел раньше
		if errors.Is(err, repo.ErrAlreadyExists) && req.IdempotencyKey != "" {
			existing, gerr := h.runs.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
			if HandleRepoError(w, h.logger, gerr, "run not found") {
				return
			}
			Success(w, RunFromDomain(*existing))
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("run created", "run_id", run.ID, "items", run.Total, "source", run.Source)

	if h.publisher != nil {
		if err := h.publisher.PublishRunRequested(r.Context(), run.ID); err != nil {
			h.logger.Warn("failed to publish run.requested", "run_id", run.ID, "error", err)
		}
	}

	Created(w, RunFromDomain(*run))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "run")
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// CancelRun отменяет PENDING или RUNNING run.
// Воркер замечает отмену при следующем опросе статуса.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "run")
	if !ok {
		return
	}

	if err := h.runs.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			InvalidState(w, "run is already finished")
			return
		}
		HandleRepoError(w, h.logger, err, "run not found")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunItems возвращает результаты item'ов run.
// GET /api/v1/runs/{id}/items?failed=true
func (h *Handler) ListRunItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "run")
	if !ok {
		return
	}

	failedOnly, _ := strconv.ParseBool(r.URL.Query().Get("failed"))

	// Проверяем, что run существует
	if _, err := h.runs.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	items, err := h.items.ListByRun(r.Context(), id, failedOnly)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ItemResponse, len(items))
	for i, it := range items {
		result[i] = ItemFromDomain(it)
	}

	List(w, result, len(result))
}

// validateRunSpec проверяет то, что можно проверить без воркера.
// Пустые поля допустимы: воркер возьмёт их из своей конфигурации.
func validateRunSpec(spec domain.RunSpec, reg *engine.Registry) error {
	if spec.EngineVariant != "" && !reg.Has(engine.Variant(spec.EngineVariant)) {
		return fmt.Errorf("unknown engine variant %q", spec.EngineVariant)
	}
	switch orchestrator.StrategyKind(spec.Strategy) {
	case "", orchestrator.KindPool, orchestrator.KindMicroBatch:
	default:
		return fmt.Errorf("unknown strategy %q", spec.Strategy)
	}
	if spec.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", spec.Concurrency)
	}
	if spec.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative, got %d", spec.BatchSize)
	}
	return nil
}

// parseIntParam читает неотрицательный int из query с дефолтным значением.
func parseIntParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}
