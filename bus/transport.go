package bus

import (
	"context"

	"github.com/manifoldbus/manifold/topic"
)

// Transport supplies real connectivity to one messaging backend.
//
// A Router drives its Transport from the routing goroutine: Connect once at
// construction, Subscribe on the first local subscription for a pattern,
// Unsubscribe when the last one is removed, Publish for outbound messages,
// and Disconnect exactly once on close. Topics and patterns are passed in
// the transport's native syntax (see Scheme); payloads are opaque bytes,
// passed through unchanged in both directions.
//
// Implementations report back through the Events handed to Connect. They
// must be safe for the Router to call from a single goroutine; they need
// no internal serialisation beyond what their client library requires.
type Transport interface {
	// Scheme returns the transport's native topic syntax. The Router
	// translates between this and its canonical scheme at the boundary.
	Scheme() topic.Scheme

	// Connect begins establishing connectivity and retains events for
	// later notifications. A nil error means the attempt is underway (or
	// already complete); the transport signals actual readiness through
	// events.Ready, which may fire before Connect returns.
	Connect(events *Events) error

	// Subscribe issues a real transport-level subscription for a pattern
	// in native syntax.
	Subscribe(ctx context.Context, pattern string) error

	// Unsubscribe retracts a transport-level subscription.
	Unsubscribe(ctx context.Context, pattern string) error

	// Publish sends a payload to a concrete topic in native syntax.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Disconnect tears down connectivity. Returning confirms the
	// disconnect; the Router calls it at most once.
	Disconnect(ctx context.Context) error
}

// Events is the notification channel from a Transport back into its Router.
//
// Multiplicity: Ready and Closed fire at most once each; Error may recur
// but the first fatal error ends the router; Message fires once per inbound
// delivery. All methods are safe to call from any goroutine and never block
// once the router has terminated.
type Events struct {
	router *Router
}

// Ready signals that the transport is connected and operational. Operations
// queued before readiness are replayed, in order, when this fires.
func (e *Events) Ready() {
	e.router.notify(event{kind: eventReady})
}

// Closed signals that the transport has disconnected on its own. A close
// initiated by the Router does not need this; Disconnect returning is the
// confirmation there.
func (e *Events) Closed() {
	e.router.notify(event{kind: eventClosed})
}

// Error reports an unrecoverable transport failure. The router surfaces it
// to its error observer and shuts down.
func (e *Events) Error(err error) {
	e.router.notify(event{kind: eventError, err: err})
}

// Message hands an inbound delivery to the router: the topic in the
// transport's native syntax and the raw payload.
func (e *Events) Message(rawTopic string, payload []byte) {
	e.router.notify(event{kind: eventMessage, topic: rawTopic, payload: payload})
}

// eventKind discriminates transport notifications on the routing goroutine.
type eventKind int

const (
	eventReady eventKind = iota
	eventClosed
	eventError
	eventMessage
)

type event struct {
	kind    eventKind
	err     error
	topic   string
	payload []byte
}
