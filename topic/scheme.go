package topic

import "strings"

// Scheme describes one transport's topic syntax: the segment separator and
// the two wildcard tokens. Every transport supplies its own Scheme at
// construction; the routing engine never hard-codes any of the three symbols.
//
// A Scheme is a small value type and is safe to copy and compare.
type Scheme struct {
	// Separator joins segments into a raw topic string (e.g. "/").
	Separator string

	// Single is the single-level wildcard token. As a pattern segment it
	// matches exactly one concrete segment (e.g. "+").
	Single string

	// Multi is the multi-level wildcard token. As the final pattern segment
	// it matches zero or more trailing concrete segments (e.g. "#").
	Multi string
}

// Canonical is the transport-independent scheme used inside the routing
// engine: MQTT-style separator and wildcards.
var Canonical = Scheme{Separator: "/", Single: "+", Multi: "#"}

// Split parses a raw topic string into its ordered segments.
//
// Split is purely mechanical: it performs no validation, so that
// Join(Split(raw)) == raw holds for every input. Use ValidateTopic or
// ValidatePattern to check the result.
func (s Scheme) Split(raw string) []string {
	return strings.Split(raw, s.Separator)
}

// Join formats segments back into a raw topic string.
func (s Scheme) Join(segments []string) string {
	return strings.Join(segments, s.Separator)
}

// IsSingle reports whether a segment is this scheme's single-level wildcard.
func (s Scheme) IsSingle(segment string) bool {
	return segment == s.Single
}

// IsMulti reports whether a segment is this scheme's multi-level wildcard.
func (s Scheme) IsMulti(segment string) bool {
	return segment == s.Multi
}

// IsWildcard reports whether a segment is either wildcard token.
func (s Scheme) IsWildcard(segment string) bool {
	return s.IsSingle(segment) || s.IsMulti(segment)
}

// ValidatePattern checks a subscription pattern against this scheme.
//
// A valid pattern is non-empty, contains no empty segments, and uses the
// multi-level wildcard only as its final segment. Malformed patterns are
// rejected outright rather than truncated or reinterpreted, so a pattern
// is either indexed exactly as written or not at all.
//
// Returns:
//   - error: nil, or one of ErrEmptyPattern, ErrEmptySegment, ErrMultiNotLast
func (s Scheme) ValidatePattern(raw string) error {
	if raw == "" {
		return ErrEmptyPattern
	}

	segments := s.Split(raw)
	for i, segment := range segments {
		if segment == "" {
			return ErrEmptySegment
		}
		if s.IsMulti(segment) && i != len(segments)-1 {
			return ErrMultiNotLast
		}
	}

	return nil
}

// ValidateTopic checks a concrete topic (a publish destination) against
// this scheme. A valid topic is non-empty, contains no empty segments,
// and contains no wildcard tokens.
//
// Returns:
//   - error: nil, or one of ErrEmptyPattern, ErrEmptySegment, ErrWildcardInTopic
func (s Scheme) ValidateTopic(raw string) error {
	if raw == "" {
		return ErrEmptyPattern
	}

	for _, segment := range s.Split(raw) {
		if segment == "" {
			return ErrEmptySegment
		}
		if s.IsWildcard(segment) {
			return ErrWildcardInTopic
		}
	}

	return nil
}

// Translate converts a raw topic or pattern from one scheme to another,
// segment by segment: wildcard tokens are substituted, literal segments
// pass through unchanged, and the result is joined with the target
// scheme's separator.
//
// For topics free of transport-reserved tokens the conversion is a
// bijection: Translate(Translate(t, a, b), b, a) == t.
//
// Schemes whose two wildcard tokens coincide (Redis glob patterns use "*"
// for both) are supported in the outbound direction; translating a pattern
// out of such a scheme resolves the ambiguity in favour of the multi-level
// wildcard in final position. Inbound traffic is concrete topics only, so
// the ambiguity never arises in practice.
func Translate(raw string, from, to Scheme) string {
	if from == to {
		return raw
	}

	segments := from.Split(raw)
	translated := make([]string, len(segments))
	for i, segment := range segments {
		switch {
		case from.IsMulti(segment) && i == len(segments)-1:
			translated[i] = to.Multi
		case from.IsSingle(segment):
			translated[i] = to.Single
		default:
			translated[i] = segment
		}
	}

	return to.Join(translated)
}
