package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись с таким ключом уже есть.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — run в статусе, который не допускает операцию.
	ErrInvalidState = errors.New("invalid state")
)
