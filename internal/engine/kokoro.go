package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Recital/internal/audio"
)

// Параметры kokoro по умолчанию.
const (
	defaultKokoroBaseURL = "http://localhost:8102"
	defaultKokoroVoice   = "af_nova"
	defaultKokoroModel   = "kokoro"
	defaultHTTPTimeout   = 60 * time.Second
	probeTimeout         = 3 * time.Second
	maxAudioBody         = 64 * 1024 * 1024 // 64 MB
	maxErrorBody         = 4 * 1024
)

// KokoroAdapter — OpenAI-совместимый TTS сервер (Kokoro FastAPI и аналоги).
//
// Параметры:
//
//	{
//	    "base_url": "http://localhost:8102",
//	    "voice": "af_nova",
//	    "speed": 1.0,
//	    "timeout_sec": 60,
//	    "probe": true
//	}
type KokoroAdapter struct{}

// NewKokoroAdapter создаёт KokoroAdapter.
func NewKokoroAdapter() *KokoroAdapter {
	return &KokoroAdapter{}
}

// Variant возвращает вариант движка.
func (a *KokoroAdapter) Variant() Variant {
	return VariantKokoro
}

// Capabilities возвращает возможности kokoro.
func (a *KokoroAdapter) Capabilities() Capabilities {
	return Capabilities{Description: "OpenAI-compatible /v1/audio/speech server"}
}

// Init проверяет доступность сервера через GET /v1/models.
func (a *KokoroAdapter) Init(ctx context.Context, cfg Config) (Handle, error) {
	model := cfg.ModelRef
	if model == "" {
		model = defaultKokoroModel
	}

	h := &KokoroHandle{
		baseURL: strings.TrimRight(cfg.String("base_url", defaultKokoroBaseURL), "/"),
		model:   model,
		voice:   cfg.String("voice", defaultKokoroVoice),
		speed:   cfg.Float("speed", 0),
		client: &http.Client{
			Timeout: cfg.Seconds("timeout_sec", defaultHTTPTimeout),
		},
	}

	if cfg.Bool("probe", true) {
		if err := probe(ctx, h.client, h.baseURL+"/v1/models"); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// KokoroHandle — клиент к серверу kokoro.
type KokoroHandle struct {
	baseURL string
	model   string
	voice   string
	speed   float64
	client  *http.Client
}

type speechRequest struct {
	Model  string  `json:"model"`
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"response_format"`
	Speed  float64 `json:"speed,omitempty"`
}

// Synthesize запрашивает WAV у сервера.
func (h *KokoroHandle) Synthesize(ctx context.Context, text string) (audio.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Audio{}, ErrEmptyText
	}

	body, err := json.Marshal(speechRequest{
		Model:  h.model,
		Input:  text,
		Voice:  h.voice,
		Format: "wav",
		Speed:  h.speed,
	})
	if err != nil {
		return audio.Audio{}, fmt.Errorf("marshal speech request: %w", err)
	}

	data, err := postJSON(ctx, h.client, h.baseURL+"/v1/audio/speech", body)
	if err != nil {
		return audio.Audio{}, err
	}

	a, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Audio{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return a, nil
}

// Close закрывает idle соединения.
func (h *KokoroHandle) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// probe выполняет GET и ожидает 200.
func probe(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrBackend, url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: probe %s: status %d", ErrBackend, url, resp.StatusCode)
	}
	return nil
}

// postJSON отправляет JSON и возвращает тело ответа 2xx.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrBackend, err)
	}
	return data, nil
}
