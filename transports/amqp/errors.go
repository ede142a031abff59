package amqp

import "errors"

// Domain-specific errors for the AMQP transport.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations before the
	// broker connection is established.
	ErrNotConnected = errors.New("amqp: not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("amqp: connection failed")

	// ErrSubscribeFailed is returned when a queue bind fails.
	ErrSubscribeFailed = errors.New("amqp: subscribe failed")

	// ErrUnsubscribeFailed is returned when a queue unbind fails.
	ErrUnsubscribeFailed = errors.New("amqp: unsubscribe failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("amqp: publish failed")
)
