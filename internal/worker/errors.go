package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run уже забран другим воркером или отменён.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrNoItems — у run нет ни items, ни source.
	ErrNoItems = errors.New("run has neither items nor source")

	// ErrWorkerStopped — воркер остановлен во время выполнения run.
	ErrWorkerStopped = errors.New("worker stopped")
)
