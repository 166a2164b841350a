package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeRunRequested  MessageType = "run.requested"
	MessageTypeItemCompleted MessageType = "item.completed"
	MessageTypeRunFinished   MessageType = "run.finished"
)

// Message — конверт всех сообщений.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RunRequestedPayload — run ждёт выполнения.
type RunRequestedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// ItemCompletedPayload — результат одного item.
type ItemCompletedPayload struct {
	RunID  uuid.UUID               `json:"run_id"`
	Result domain.ProcessingResult `json:"result"`
}

// RunFinishedPayload — итог run.
type RunFinishedPayload struct {
	RunID     uuid.UUID        `json:"run_id"`
	Status    domain.RunStatus `json:"status"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Error     string           `json:"error,omitempty"`
}

// NewMessage упаковывает payload в конверт с новым ID.
func NewMessage(t MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload распаковывает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return out, nil
}
