package cli

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Recital/internal/domain"
)

// fakeAPI записывает последний запрос и отвечает заданным телом.
type fakeAPI struct {
	method string
	path   string
	query  string
	body   []byte

	status int
	reply  string
}

func (f *fakeAPI) server(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.method = r.Method
		f.path = r.URL.Path
		f.query = r.URL.RawQuery
		f.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.reply)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClient_CreateRun(t *testing.T) {
	api := &fakeAPI{
		status: http.StatusCreated,
		reply:  `{"data":{"id":"r-1","status":"PENDING","spec":{"engine_variant":"tone","strategy":"pool","output_dir":"snd"},"total":2}}`,
	}
	client := api.server(t)

	run, err := client.CreateRun(CreateRunRequest{
		RunSpec: domain.RunSpec{EngineVariant: "tone", Strategy: "pool"},
		Items: []domain.WorkItem{
			{ID: "a", Text: "hello"},
			{ID: "b", Text: "world"},
		},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, api.method)
	assert.Equal(t, "/api/v1/runs", api.path)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(api.body, &sent))
	assert.Equal(t, "tone", sent["engine_variant"], "spec fields are inlined")
	assert.Equal(t, "k1", sent["idempotency_key"])
	assert.Len(t, sent["items"], 2)

	assert.Equal(t, "r-1", run.ID)
	assert.Equal(t, "tone", run.Spec.EngineVariant)
	assert.Equal(t, 2, run.Total)
	assert.False(t, run.IsFinished())
}

func TestClient_ListRunsQuery(t *testing.T) {
	api := &fakeAPI{reply: `{"data":[{"id":"r-1","status":"FAILED"}],"total":1}`}
	client := api.server(t)

	runs, err := client.ListRuns(ListRunsOpts{Status: "failed", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, "limit=5&status=FAILED", api.query)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].IsFinished())
}

func TestClient_ListItemsFailedOnly(t *testing.T) {
	api := &fakeAPI{reply: `{"data":[{"id":"b","outcome":"failure","stage":"synthesize","reason":"boom"}],"total":1}`}
	client := api.server(t)

	items, err := client.ListItems("r-1", true)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/runs/r-1/items", api.path)
	assert.Equal(t, "failed=true", api.query)
	require.Len(t, items, 1)
	assert.Equal(t, "synthesize", items[0].Stage)
}

func TestClient_Schedules(t *testing.T) {
	t.Run("list enabled", func(t *testing.T) {
		api := &fakeAPI{reply: `{"data":[],"total":0}`}
		client := api.server(t)

		enabled := true
		_, err := client.ListSchedules(&enabled)
		require.NoError(t, err)
		assert.Equal(t, "enabled=true", api.query)
	})

	t.Run("set enabled", func(t *testing.T) {
		api := &fakeAPI{reply: `{"data":{"id":"s-1","enabled":false}}`}
		client := api.server(t)

		s, err := client.SetScheduleEnabled("s-1", false)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPut, api.method)
		assert.Equal(t, "/api/v1/schedules/s-1/enabled", api.path)
		assert.JSONEq(t, `{"enabled":false}`, string(api.body))
		assert.False(t, s.Enabled)
	})

	t.Run("update sends only changed fields", func(t *testing.T) {
		api := &fakeAPI{reply: `{"data":{"id":"s-1","name":"nightly"}}`}
		client := api.server(t)

		name := "nightly"
		_, err := client.UpdateSchedule("s-1", UpdateScheduleRequest{Name: &name})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"nightly"}`, string(api.body))
	})

	t.Run("delete", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusNoContent}
		client := api.server(t)

		require.NoError(t, client.DeleteSchedule("s-1"))
		assert.Equal(t, http.MethodDelete, api.method)
	})
}

func TestClient_APIError(t *testing.T) {
	api := &fakeAPI{
		status: http.StatusNotFound,
		reply:  `{"error":{"code":"NOT_FOUND","message":"run not found"}}`,
	}
	client := api.server(t)

	_, err := client.GetRun("missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "NOT_FOUND: run not found", err.Error())
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadGateway, reply: "bad gateway"}
	client := api.server(t)

	_, err := client.ListEngines()

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API error: HTTP 502", apiErr.Error())
}
