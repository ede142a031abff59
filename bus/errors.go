package bus

import "errors"

// Domain-specific errors for bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned when an operation is issued against a Router
	// that has begun (or finished) shutting down.
	ErrClosed = errors.New("bus: router closed")

	// ErrNilHandler is returned when Subscribe is called without a handler.
	ErrNilHandler = errors.New("bus: handler cannot be nil")

	// ErrSubscribeFailed wraps a transport-level subscribe failure.
	ErrSubscribeFailed = errors.New("bus: transport subscribe failed")

	// ErrUnsubscribeFailed wraps a transport-level unsubscribe failure.
	ErrUnsubscribeFailed = errors.New("bus: transport unsubscribe failed")

	// ErrPublishFailed wraps a transport-level publish failure.
	ErrPublishFailed = errors.New("bus: transport publish failed")

	// ErrConnectFailed is returned by New when the transport rejects the
	// initial connection attempt.
	ErrConnectFailed = errors.New("bus: transport connect failed")

	// ErrTransportClosed is the terminal error recorded when the transport
	// reports an unsolicited disconnect while the router is still open.
	ErrTransportClosed = errors.New("bus: transport closed unexpectedly")
)
