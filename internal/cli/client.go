package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Recital/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Spec           domain.RunSpec `json:"spec"`
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	ScheduleID     string         `json:"schedule_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	StartedAt      string         `json:"started_at,omitempty"`
	FinishedAt     string         `json:"finished_at,omitempty"`
	DurationMs     int64          `json:"duration_ms,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// IsFinished сообщает, что run в финальном статусе.
func (r *RunResponse) IsFinished() bool {
	return domain.RunStatus(r.Status).IsTerminal()
}

// ItemResponse — результат item из API.
type ItemResponse struct {
	ID           string `json:"id"`
	Outcome      string `json:"outcome"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Stage        string `json:"stage,omitempty"`
	Reason       string `json:"reason,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	FinishedAt   string `json:"finished_at"`
}

// EngineResponse — вариант движка из API.
type EngineResponse struct {
	Variant     string `json:"variant"`
	Batch       bool   `json:"batch"`
	BatchOnly   bool   `json:"batch_only"`
	Description string `json:"description"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Spec        domain.RunSpec `json:"spec"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone"`
	Enabled     bool           `json:"enabled"`
	NextDueAt   string         `json:"next_due_at,omitempty"`
	LastRunAt   string         `json:"last_run_at,omitempty"`
	LastRunID   string         `json:"last_run_id,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// --- Request types ---

// CreateRunRequest — создание run. Поля RunSpec встраиваются в JSON.
type CreateRunRequest struct {
	domain.RunSpec
	Items          []domain.WorkItem `json:"items,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	Spec        domain.RunSpec `json:"spec"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string         `json:"name,omitempty"`
	Spec        *domain.RunSpec `json:"spec,omitempty"`
	CronExpr    *string         `json:"cron_expr,omitempty"`
	IntervalSec *int            `json:"interval_sec,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Status     string
	ScheduleID string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Recital API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// отправка большого словаря может идти долго
			Timeout: 2 * time.Minute,
		},
	}
}

// --- Engines ---

// ListEngines возвращает варианты движка, известные серверу.
func (c *Client) ListEngines() ([]EngineResponse, error) {
	var engines []EngineResponse
	err := c.list("/api/v1/engines", nil, &engines)
	return engines, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", strings.ToUpper(opts.Status))
	}
	if opts.ScheduleID != "" {
		params.Set("schedule_id", opts.ScheduleID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun создаёт run.
func (c *Client) CreateRun(req CreateRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs", req, &run)
	return &run, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run)
	return &run, err
}

// ListItems возвращает результаты item'ов run.
func (c *Client) ListItems(runID string, failedOnly bool) ([]ItemResponse, error) {
	params := url.Values{}
	if failedOnly {
		params.Set("failed", "true")
	}

	var items []ItemResponse
	err := c.list("/api/v1/runs/"+url.PathEscape(runID)+"/items", params, &items)
	return items, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. enabled=nil — все.
func (c *Client) ListSchedules(enabled *bool) ([]ScheduleResponse, error) {
	params := url.Values{}
	if enabled != nil {
		params.Set("enabled", strconv.FormatBool(*enabled))
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+url.PathEscape(id), &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+url.PathEscape(id), req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + url.PathEscape(id))
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put("/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
