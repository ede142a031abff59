package topic

import "errors"

// Validation errors for topics and patterns.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyPattern is returned when a pattern (or topic) is the empty string.
	ErrEmptyPattern = errors.New("topic: pattern cannot be empty")

	// ErrEmptySegment is returned when a topic or pattern contains an empty
	// segment, e.g. "a//b" or a leading/trailing separator.
	ErrEmptySegment = errors.New("topic: segments cannot be empty")

	// ErrMultiNotLast is returned when the multi-level wildcard appears
	// anywhere other than the final segment of a pattern.
	ErrMultiNotLast = errors.New("topic: multi-level wildcard must be the last segment")

	// ErrWildcardInTopic is returned when a concrete topic (a publish
	// destination) contains a wildcard token.
	ErrWildcardInTopic = errors.New("topic: wildcards are not allowed in a concrete topic")
)
