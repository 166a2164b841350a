package api

import "net/http"

// ListEngines возвращает зарегистрированные варианты движка.
// GET /api/v1/engines
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	variants := h.registry.Variants()
	result := make([]EngineResponse, 0, len(variants))
	for _, v := range variants {
		a, err := h.registry.Get(v)
		if err != nil {
			continue
		}
		caps := a.Capabilities()
		result = append(result, EngineResponse{
			Variant:     string(v),
			Batch:       caps.Batch,
			BatchOnly:   caps.BatchOnly,
			Description: caps.Description,
		})
	}
	List(w, result, len(result))
}
