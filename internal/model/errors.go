package model

import "errors"

var (
	// ErrBrokerClosed is returned when an operation is submitted to a broker
	// that has shut down.
	ErrBrokerClosed = errors.New("broker is closed")

	// ErrSessionClosed is returned when a message is delivered to a session
	// whose connection has gone away.
	ErrSessionClosed = errors.New("session is closed")

	// ErrSendBufferFull is returned when a session's outbound queue is full.
	ErrSendBufferFull = errors.New("session send buffer is full")
)
