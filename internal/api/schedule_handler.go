package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/scheduler"
)

// ListSchedules возвращает список schedules.
// GET /api/v1/schedules?enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := repo.ScheduleFilter{
		Limit:  parseIntParam(r, "limit", 50),
		Offset: parseIntParam(r, "offset", 0),
	}

	if s := r.URL.Query().Get("enabled"); s != "" {
		enabled, err := strconv.ParseBool(s)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт schedule повторной обработки TSV.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	now := time.Now().UTC()
	schedule := &domain.Schedule{
		ID:          uuid.New(),
		Name:        req.Name,
		Spec:        req.Spec,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    req.Timezone,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if schedule.Timezone == "" {
		schedule.Timezone = "UTC"
	}

	if err := h.validateSchedule(schedule); err != nil {
		BadRequest(w, err.Error())
		return
	}

	next, err := scheduler.CalculateInitialNextDue(schedule)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	schedule.NextDueAt = &next

	if err := h.schedules.Create(r.Context(), schedule); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("schedule created", "schedule_id", schedule.ID, "next_due_at", next)
	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule. При смене расписания
// next_due_at пересчитывается от текущего момента.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	timingChanged := req.CronExpr != nil || req.IntervalSec != nil || req.Timezone != nil

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.Spec != nil {
		schedule.Spec = *req.Spec
	}
	if req.CronExpr != nil {
		schedule.CronExpr = *req.CronExpr
	}
	if req.IntervalSec != nil {
		schedule.IntervalSec = *req.IntervalSec
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}

	if err := h.validateSchedule(schedule); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if timingChanged {
		next, err := scheduler.CalculateInitialNextDue(schedule)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		schedule.NextDueAt = &next
	}
	schedule.UpdatedAt = time.Now().UTC()

	if err := h.schedules.Update(r.Context(), schedule); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	if err := h.schedules.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// Включённый schedule не догоняет пропущенные запуски: next_due_at
// из прошлого сдвигается вперёд.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	var req SetEnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.schedules.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	if schedule.Enabled && (schedule.NextDueAt == nil || schedule.NextDueAt.Before(time.Now())) {
		next, err := scheduler.CalculateInitialNextDue(schedule)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		schedule.NextDueAt = &next
		schedule.UpdatedAt = time.Now().UTC()
		if err := h.schedules.Update(r.Context(), schedule); err != nil {
			HandleRepoError(w, h.logger, err, "schedule not found")
			return
		}
	}

	Success(w, ScheduleFromDomain(schedule))
}

// validateSchedule проверяет расписание и параметры его run'ов.
func (h *Handler) validateSchedule(s *domain.Schedule) error {
	if s.CronExpr == "" && s.IntervalSec <= 0 {
		return fmt.Errorf("either cron_expr or interval_sec is required")
	}
	if s.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(s.CronExpr); err != nil {
			return err
		}
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", s.Timezone)
	}
	if s.Spec.Source == "" {
		return fmt.Errorf("spec.source is required")
	}
	return validateRunSpec(s.Spec, h.registry)
}
