package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Recital/internal/audio"
)

const (
	defaultBatchPath    = "/v1/audio/batch"
	defaultBatchHealth  = "/healthz"
	defaultBatchTimeout = 300 * time.Second
)

// BatchHTTPAdapter — сервер, у которого есть только пакетный инференс.
//
// Запрос:
//
//	POST {base_url}/v1/audio/batch
//	{"model": "...", "inputs": ["text 1", "text 2"]}
//
// Ответ (порядок совпадает с inputs):
//
//	{"results": [{"audio": "<base64 wav>"}, {"error": "text too long"}]}
//
// Параметры: base_url (обязателен), path, health_path, timeout_sec, probe.
type BatchHTTPAdapter struct{}

// NewBatchHTTPAdapter создаёт BatchHTTPAdapter.
func NewBatchHTTPAdapter() *BatchHTTPAdapter {
	return &BatchHTTPAdapter{}
}

// Variant возвращает вариант движка.
func (a *BatchHTTPAdapter) Variant() Variant {
	return VariantBatchHTTP
}

// Capabilities возвращает возможности batchhttp.
func (a *BatchHTTPAdapter) Capabilities() Capabilities {
	return Capabilities{
		Batch:       true,
		BatchOnly:   true,
		Description: "batch-only HTTP inference server",
	}
}

// Init проверяет параметры и доступность сервера.
func (a *BatchHTTPAdapter) Init(ctx context.Context, cfg Config) (Handle, error) {
	base := strings.TrimRight(cfg.String("base_url", ""), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrInvalidParam)
	}

	h := &BatchHTTPHandle{
		url:   base + cfg.String("path", defaultBatchPath),
		model: cfg.ModelRef,
		client: &http.Client{
			Timeout: cfg.Seconds("timeout_sec", defaultBatchTimeout),
		},
	}

	if cfg.Bool("probe", true) {
		if err := probe(ctx, h.client, base+cfg.String("health_path", defaultBatchHealth)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// BatchHTTPHandle — клиент пакетного сервера.
type BatchHTTPHandle struct {
	url    string
	model  string
	client *http.Client
}

type batchRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

type batchItem struct {
	Audio string `json:"audio,omitempty"`
	Error string `json:"error,omitempty"`
}

// SynthesizeBatch синтезирует все тексты одним запросом.
func (h *BatchHTTPHandle) SynthesizeBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(batchRequest{Model: h.model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	data, err := postJSON(ctx, h.client, h.url, body)
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode batch response: %v", ErrBackend, err)
	}
	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrBatchMismatch, len(texts), len(resp.Results))
	}

	results := make([]BatchResult, len(texts))
	for i, item := range resp.Results {
		results[i] = decodeBatchItem(item)
	}
	return results, nil
}

func decodeBatchItem(item batchItem) BatchResult {
	if item.Error != "" {
		return BatchResult{Err: fmt.Errorf("%w: %s", ErrBackend, item.Error)}
	}
	if item.Audio == "" {
		return BatchResult{Err: fmt.Errorf("%w: empty audio", ErrBackend)}
	}
	raw, err := base64.StdEncoding.DecodeString(item.Audio)
	if err != nil {
		return BatchResult{Err: fmt.Errorf("%w: decode audio: %v", ErrBackend, err)}
	}
	a, err := audio.DecodeWAV(raw)
	if err != nil {
		return BatchResult{Err: fmt.Errorf("%w: %v", ErrBackend, err)}
	}
	return BatchResult{Audio: a}
}

// Synthesize синтезирует один текст батчем из одного элемента.
func (h *BatchHTTPHandle) Synthesize(ctx context.Context, text string) (audio.Audio, error) {
	results, err := h.SynthesizeBatch(ctx, []string{text})
	if err != nil {
		return audio.Audio{}, err
	}
	if len(results) != 1 {
		return audio.Audio{}, errors.New("batch returned no result")
	}
	return results[0].Audio, results[0].Err
}

// Close закрывает idle соединения.
func (h *BatchHTTPHandle) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
