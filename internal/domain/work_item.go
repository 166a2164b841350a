package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки валидации WorkItem.
var (
	// ErrEmptyID — у item пустой идентификатор.
	ErrEmptyID = errors.New("work item has empty id")

	// ErrUnsafeID — идентификатор нельзя использовать как имя файла.
	ErrUnsafeID = errors.New("work item id is not filesystem-safe")

	// ErrDuplicateID — идентификатор встречается больше одного раза.
	ErrDuplicateID = errors.New("duplicate work item id")
)

// WorkItem — единица входной работы: один текст → один аудио-артефакт.
//
// ID однозначно определяет имя выходного файла, поэтому должен быть
// уникальным в пределах run и безопасным для файловой системы.
type WorkItem struct {
	// ID — идентификатор, из него строится имя артефакта (<ID>.<ext>).
	ID string `json:"id"`

	// Text — текст для синтеза.
	Text string `json:"text"`
}

// Validate проверяет item.
func (w WorkItem) Validate() error {
	return ValidateID(w.ID)
}

// ValidateID проверяет, что id можно использовать как базовое имя файла.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	if id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrUnsafeID, id)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrUnsafeID, id)
	}
	return nil
}

// ValidateItems проверяет все item'ы и уникальность их id.
func ValidateItems(items []WorkItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("item %d: %w: %s", i, ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
