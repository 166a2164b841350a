package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
// Дополнительные middleware (например, Metrics) оборачивают каждый маршрут
// после Recovery и Logging.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, extra ...Middleware) {
	chain := Chain(append([]Middleware{
		Recovery(h.logger),
		Logging(h.logger),
	}, extra...)...)

	// Engines
	mux.Handle("GET /api/v1/engines", chain(http.HandlerFunc(h.ListEngines)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
	mux.Handle("GET /api/v1/runs/{id}/items", chain(http.HandlerFunc(h.ListRunItems)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
