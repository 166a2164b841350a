package mq

import "errors"

var (
	// ErrNoChannel — соединение ещё не установлено или переподключается.
	ErrNoChannel = errors.New("amqp channel is not available")

	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("amqp connection closed")

	// ErrPermanent помечает ошибку обработчика, после которой повтор
	// бессмысленен: сообщение уходит в DLQ без requeue.
	ErrPermanent = errors.New("permanent failure")
)
