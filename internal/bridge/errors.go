package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyStarted is returned when Start is called on a running bridge.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrNoPatterns is returned when a rule lists no patterns to forward.
	ErrNoPatterns = errors.New("bridge: rule has no patterns")

	// ErrNilBus is returned when Options is missing a source or target bus.
	ErrNilBus = errors.New("bridge: source and target buses are required")
)
