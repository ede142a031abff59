package nats

import "errors"

// Domain-specific errors for the NATS transport.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations before the
	// server connection is established.
	ErrNotConnected = errors.New("nats: not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("nats: connection failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("nats: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("nats: unsubscribe failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("nats: publish failed")
)
