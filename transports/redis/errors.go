package redis

import "errors"

// Domain-specific errors for the Redis transport.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations before the
	// server connection is established.
	ErrNotConnected = errors.New("redis: not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrSubscribeFailed is returned when a PSUBSCRIBE operation fails.
	ErrSubscribeFailed = errors.New("redis: subscribe failed")

	// ErrUnsubscribeFailed is returned when a PUNSUBSCRIBE operation fails.
	ErrUnsubscribeFailed = errors.New("redis: unsubscribe failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("redis: publish failed")
)
