package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/repo"
)

// --- in-memory хранилища ---

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Run
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[uuid.UUID]*domain.Run)}
}

func (m *memRuns) Create(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if run.IdempotencyKey != "" && r.IdempotencyKey == run.IdempotencyKey {
			return repo.ErrAlreadyExists
		}
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) GetByIdempotencyKey(_ context.Context, key string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRuns) List(_ context.Context, f repo.RunFilter) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, r := range m.runs {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRuns) Cancel(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if r.IsFinished() {
		return repo.ErrInvalidState
	}
	r.MarkCancelled(domain.Summary{Total: r.Total})
	return nil
}

type memItems struct {
	results map[uuid.UUID][]domain.ProcessingResult
}

func (m *memItems) ListByRun(_ context.Context, runID uuid.UUID, failedOnly bool) ([]domain.ProcessingResult, error) {
	var out []domain.ProcessingResult
	for _, r := range m.results[runID] {
		if failedOnly && r.IsSuccess() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type memSchedules struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.Schedule
}

func newMemSchedules() *memSchedules {
	return &memSchedules{schedules: make(map[uuid.UUID]*domain.Schedule)}
}

func (m *memSchedules) Create(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.schedules[s.ID] = &cp
	return nil
}

func (m *memSchedules) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSchedules) List(_ context.Context, f repo.ScheduleFilter) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Schedule
	for _, s := range m.schedules {
		if f.Enabled != nil && s.Enabled != *f.Enabled {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSchedules) Update(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *s
	m.schedules[s.ID] = &cp
	return nil
}

func (m *memSchedules) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *memSchedules) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Enabled = enabled
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	runs []uuid.UUID
}

func (p *recordingPublisher) PublishRunRequested(_ context.Context, runID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, runID)
	return nil
}

// --- helpers ---

type testEnv struct {
	server    *httptest.Server
	runs      *memRuns
	items     *memItems
	schedules *memSchedules
	publisher *recordingPublisher
	registry  *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		runs:      newMemRuns(),
		items:     &memItems{results: make(map[uuid.UUID][]domain.ProcessingResult)},
		schedules: newMemSchedules(),
		publisher: &recordingPublisher{},
		registry:  prometheus.NewRegistry(),
	}

	h := NewHandler(Config{
		Runs:      env.runs,
		Items:     env.items,
		Schedules: env.schedules,
		Publisher: env.publisher,
		Registry:  engine.DefaultRegistry(),
		Logger:    slog.New(slog.DiscardHandler),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, Metrics(env.registry))

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data
}

func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Error
}

// --- runs ---

func TestCreateRun(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
		"engine_variant": "tone",
		"strategy":       "microbatch",
		"batch_size":     4,
		"items": []map[string]string{
			{"id": "apple", "text": "apple."},
			{"id": "banana", "text": "banana."},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeData[RunResponse](t, resp)
	assert.Equal(t, "PENDING", run.Status)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, "tone", run.Spec.EngineVariant)
	assert.Equal(t, 4, run.Spec.BatchSize)

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "banana", stored.Items[1].ID)

	assert.Equal(t, []uuid.UUID{run.ID}, env.publisher.runs)
}

func TestCreateRun_Source(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
		"source":     "/data/words.tsv",
		"output_dir": "/data/snd",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeData[RunResponse](t, resp)
	assert.Equal(t, "/data/words.tsv", run.Spec.Source)
	assert.Equal(t, 0, run.Total)
}

func TestCreateRun_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"invalid json", "{", "invalid request body"},
		{"no items", map[string]any{"engine_variant": "tone"}, "either items or source is required"},
		{
			"items and source",
			map[string]any{"source": "a.tsv", "items": []map[string]string{{"id": "a"}}},
			"mutually exclusive",
		},
		{
			"duplicate id",
			map[string]any{"items": []map[string]string{{"id": "a"}, {"id": "a"}}},
			"duplicate",
		},
		{
			"unsafe id",
			map[string]any{"items": []map[string]string{{"id": "../etc"}}},
			"filesystem-safe",
		},
		{
			"unknown engine",
			map[string]any{"engine_variant": "espeak", "source": "a.tsv"},
			`unknown engine variant "espeak"`,
		},
		{
			"unknown strategy",
			map[string]any{"strategy": "serial", "source": "a.tsv"},
			`unknown strategy "serial"`,
		},
		{
			"negative concurrency",
			map[string]any{"concurrency": -1, "source": "a.tsv"},
			"concurrency must not be negative",
		},
		{
			"unknown field",
			map[string]any{"source": "a.tsv", "voice": "af_nova"},
			`unknown field "voice"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, http.MethodPost, "/api/v1/runs", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			e := decodeError(t, resp)
			assert.Equal(t, ErrCodeBadRequest, e.Code)
			assert.Contains(t, e.Message, tt.want)
			assert.Empty(t, env.publisher.runs)
		})
	}
}

func TestCreateRun_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"source":          "words.tsv",
		"idempotency_key": "nightly-2026-10-19",
	}

	first := env.do(t, http.MethodPost, "/api/v1/runs", body)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decodeData[RunResponse](t, first)

	second := env.do(t, http.MethodPost, "/api/v1/runs", body)
	require.Equal(t, http.StatusOK, second.StatusCode)
	again := decodeData[RunResponse](t, second)

	assert.Equal(t, created.ID, again.ID)
	assert.Len(t, env.publisher.runs, 1)
}

func TestGetRun(t *testing.T) {
	env := newTestEnv(t)
	run := domain.NewRun(domain.RunSpec{EngineVariant: "tone"}, []domain.WorkItem{{ID: "a", Text: "a."}})
	require.NoError(t, env.runs.Create(context.Background(), run))

	resp := env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeData[RunResponse](t, resp)
	assert.Equal(t, run.ID, got.ID)

	resp = env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := domain.NewRun(domain.RunSpec{}, []domain.WorkItem{{ID: "a"}})
	done := domain.NewRun(domain.RunSpec{}, []domain.WorkItem{{ID: "b"}})
	done.MarkRunning()
	done.MarkSucceeded(domain.Summary{Total: 1, Succeeded: 1})
	require.NoError(t, env.runs.Create(ctx, pending))
	require.NoError(t, env.runs.Create(ctx, done))

	resp := env.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]RunResponse](t, resp), 2)

	resp = env.do(t, http.MethodGet, "/api/v1/runs?status=SUCCEEDED", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decodeData[[]RunResponse](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, done.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Succeeded)

	resp = env.do(t, http.MethodGet, "/api/v1/runs?schedule_id=bad", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	run := domain.NewRun(domain.RunSpec{}, []domain.WorkItem{{ID: "a"}})
	require.NoError(t, env.runs.Create(ctx, run))

	resp := env.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", decodeData[RunResponse](t, resp).Status)

	// повторная отмена завершённого run
	resp = env.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, ErrCodeInvalidState, decodeError(t, resp).Code)

	resp = env.do(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRunItems(t *testing.T) {
	env := newTestEnv(t)

	run := domain.NewRun(domain.RunSpec{}, []domain.WorkItem{{ID: "a"}, {ID: "b"}})
	require.NoError(t, env.runs.Create(context.Background(), run))

	ok := domain.Succeeded("a", "/snd/a.mp3")
	ok.Duration = 1500 * time.Millisecond
	bad := domain.Failed("b", domain.StageEncode, assert.AnError)
	env.items.results[run.ID] = []domain.ProcessingResult{ok, bad}

	resp := env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decodeData[[]ItemResponse](t, resp)
	require.Len(t, items, 2)
	assert.Equal(t, "/snd/a.mp3", items[0].ArtifactPath)
	assert.Equal(t, int64(1500), items[0].DurationMs)

	resp = env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/items?failed=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items = decodeData[[]ItemResponse](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "encode", items[0].Stage)
	assert.Equal(t, assert.AnError.Error(), items[0].Reason)

	resp = env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString()+"/items", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- engines ---

func TestListEngines(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/engines", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	engines := decodeData[[]EngineResponse](t, resp)
	byVariant := make(map[string]EngineResponse)
	for _, e := range engines {
		byVariant[e.Variant] = e
	}
	require.Len(t, byVariant, 4)
	assert.True(t, byVariant["batchhttp"].BatchOnly)
	assert.True(t, byVariant["tone"].Batch)
	assert.False(t, byVariant["piper"].Batch)
}

// --- schedules ---

func TestCreateSchedule(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name":      "nightly words",
		"cron_expr": "0 3 * * *",
		"enabled":   true,
		"spec":      map[string]any{"source": "/data/words.tsv", "engine_variant": "piper"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	s := decodeData[ScheduleResponse](t, resp)
	assert.Equal(t, "UTC", s.Timezone)
	require.NotNil(t, s.NextDueAt)
	assert.True(t, s.NextDueAt.After(time.Now()))
	assert.Equal(t, 3, s.NextDueAt.Hour())
	assert.Equal(t, "/data/words.tsv", s.Spec.Source)
}

func TestCreateSchedule_Validation(t *testing.T) {
	spec := map[string]any{"source": "words.tsv"}
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"no name", map[string]any{"interval_sec": 60, "spec": spec}, "name is required"},
		{"no timing", map[string]any{"name": "x", "spec": spec}, "either cron_expr or interval_sec"},
		{"bad cron", map[string]any{"name": "x", "cron_expr": "every day", "spec": spec}, "invalid cron expression"},
		{"bad timezone", map[string]any{"name": "x", "interval_sec": 60, "timezone": "Mars/Olympus", "spec": spec}, "invalid timezone"},
		{"no source", map[string]any{"name": "x", "interval_sec": 60}, "spec.source is required"},
		{
			"unknown engine",
			map[string]any{"name": "x", "interval_sec": 60, "spec": map[string]any{"source": "a.tsv", "engine_variant": "say"}},
			"unknown engine variant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, http.MethodPost, "/api/v1/schedules", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp).Message, tt.want)
		})
	}
}

func TestScheduleLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name":         "hourly",
		"interval_sec": 3600,
		"spec":         map[string]any{"source": "words.tsv"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeData[ScheduleResponse](t, resp)
	assert.False(t, created.Enabled)
	path := "/api/v1/schedules/" + created.ID.String()

	// update: смена интервала пересчитывает next_due_at
	resp = env.do(t, http.MethodPut, path, map[string]any{"name": "every minute", "interval_sec": 60})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeData[ScheduleResponse](t, resp)
	assert.Equal(t, "every minute", updated.Name)
	require.NotNil(t, updated.NextDueAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *updated.NextDueAt, 5*time.Second)

	resp = env.do(t, http.MethodPut, path, map[string]any{"cron_expr": "bad"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// enable
	resp = env.do(t, http.MethodPut, path+"/enabled", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[ScheduleResponse](t, resp).Enabled)

	resp = env.do(t, http.MethodGet, "/api/v1/schedules?enabled=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]ScheduleResponse](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/api/v1/schedules?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// delete
	resp = env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetScheduleEnabled_SkipsMissedRuns(t *testing.T) {
	env := newTestEnv(t)

	past := time.Now().Add(-48 * time.Hour).UTC()
	s := &domain.Schedule{
		ID:          uuid.New(),
		Name:        "stale",
		Spec:        domain.RunSpec{Source: "words.tsv"},
		IntervalSec: 600,
		Timezone:    "UTC",
		NextDueAt:   &past,
	}
	require.NoError(t, env.schedules.Create(context.Background(), s))

	resp := env.do(t, http.MethodPut, "/api/v1/schedules/"+s.ID.String()+"/enabled", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeData[ScheduleResponse](t, resp)
	require.NotNil(t, got.NextDueAt)
	assert.True(t, got.NextDueAt.After(time.Now()))
}

// --- middleware ---

func TestRecovery(t *testing.T) {
	h := Recovery(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeInternalError))
}

func TestMetricsMiddleware(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/v1/engines", nil)
	env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)

	expected := `
# HELP recital_api_http_requests_total HTTP requests handled by the API
# TYPE recital_api_http_requests_total counter
recital_api_http_requests_total{code="200",route="GET /api/v1/engines"} 1
recital_api_http_requests_total{code="404",route="GET /api/v1/runs/{id}"} 1
`
	require.NoError(t, testutil.GatherAndCompare(env.registry, strings.NewReader(expected), "recital_api_http_requests_total"))
}
