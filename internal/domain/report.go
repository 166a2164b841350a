package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Report — итоговый отчёт run: счётчики и результаты по каждому id.
type Report struct {
	RunID      uuid.UUID          `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Summary    Summary            `json:"summary"`
	Results    []ProcessingResult `json:"results"`
}

// Summary — счётчики исходов.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize считает исходы.
func Summarize(results []ProcessingResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.IsSuccess() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// NewReport собирает отчёт и сразу вызывает Finalize.
func NewReport(runID uuid.UUID, started, finished time.Time, results []ProcessingResult) Report {
	r := Report{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Results:    append([]ProcessingResult(nil), results...),
	}
	r.Finalize()
	return r
}

// Finalize приводит время к UTC, сортирует результаты по id
// и пересчитывает Summary.
func (r *Report) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Results, func(i, j int) bool {
		return r.Results[i].ID < r.Results[j].ID
	})

	r.Summary = Summarize(r.Results)
}

// Failures возвращает только упавшие результаты (в порядке Results).
func (r *Report) Failures() []ProcessingResult {
	var out []ProcessingResult
	for _, res := range r.Results {
		if !res.IsSuccess() {
			out = append(out, res)
		}
	}
	return out
}
