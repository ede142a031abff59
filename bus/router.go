package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manifoldbus/manifold/topic"
)

// Router defaults.
const (
	// defaultQueueSize is the buffer depth of the operation and event
	// queues feeding the routing goroutine.
	defaultQueueSize = 64

	// disconnectTimeout bounds the transport Disconnect call during close.
	disconnectTimeout = 10 * time.Second
)

// State is the router lifecycle state.
//
// Transitions: Idle → Connecting → Ready → Closing → Closed, with any
// non-terminal state able to jump to Errored on an unrecoverable transport
// failure. Closed and Errored are terminal.
type State int

// Router lifecycle states.
const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateClosing
	StateClosed
	StateErrored
)

// String returns the lowercase state name for logs and status output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Message is one delivery handed to a subscriber: the topic in canonical
// form and the payload exactly as it arrived.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives matched messages. Handlers are invoked in their own
// goroutine per delivery, so one slow or panicking handler cannot stall
// the routing loop or starve other subscribers; they should still avoid
// blocking for extended periods.
type Handler func(msg Message)

// Subscription is one live registration of a handler under a pattern.
//
// Identity is per-registration: subscribing the same pattern twice with the
// same handler yields two independent subscriptions, each delivered to
// separately.
type Subscription struct {
	id      string
	pattern string
	handler Handler
	router  *Router
}

// ID returns the subscription's unique identity.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the pattern the subscription was registered under, in
// the router's canonical scheme.
func (s *Subscription) Pattern() string { return s.pattern }

// Unsubscribe removes the subscription from its router.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.router.Unsubscribe(ctx, s)
}

// Logger is the minimal logging interface the bus package needs. It is
// satisfied by logging.Logger and by slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger {
	return noopLogger{}
}

// Options configures a Router.
type Options struct {
	// Transport provides real connectivity. Nil means a pure in-process
	// bus: the router is ready immediately and publishes fan out to local
	// subscribers only.
	Transport Transport

	// Scheme is the canonical topic syntax used for patterns and topics
	// passed to this router. Zero value means topic.Canonical.
	Scheme topic.Scheme

	// Logger receives structured log output. Nil means silent.
	Logger Logger

	// OnError is invoked (from the routing goroutine) with the fatal
	// transport error when the router transitions to StateErrored.
	OnError func(err error)

	// QueueSize is the buffer depth of the operation and event queues.
	// Zero means defaultQueueSize.
	QueueSize int
}

// Router is the topic-routing engine: it multiplexes local subscribers onto
// one logical transport connection.
//
// All methods are safe for concurrent use from multiple goroutines; every
// operation is serialised onto a single routing goroutine that exclusively
// owns the subscription trie, the reference counter and the lifecycle state.
type Router struct {
	transport Transport
	scheme    topic.Scheme
	logger    Logger
	onError   func(err error)

	ops    chan *routerOp
	events chan event
	ready  chan struct{} // closed on transition to StateReady
	done   chan struct{} // closed on reaching a terminal state

	// mu guards state and err for readers outside the routing goroutine.
	mu    sync.RWMutex
	state State
	err   error

	// Owned by the routing goroutine.
	trie    *trie
	refs    *refCounter
	pending []*routerOp
}

// routerOpKind discriminates caller operations on the routing goroutine.
type routerOpKind int

const (
	opSubscribe routerOpKind = iota
	opUnsubscribe
	opPublish
	opClose
)

// routerOp is one caller operation queued to the routing goroutine. The
// caller blocks on done until the routing goroutine completes the
// operation; completion order follows issue order.
type routerOp struct {
	kind    routerOpKind
	sub     *Subscription // subscribe target / unsubscribe victim
	topic   string        // publish destination, canonical form
	payload []byte
	done    chan error
}

// New creates a Router and begins connecting its transport.
//
// With a nil transport the router is ready immediately. With a real one it
// starts in StateConnecting; use WaitReady to block until the transport
// reports readiness, or just issue operations — they are queued and
// replayed in order once ready.
func New(opts Options) (*Router, error) {
	scheme := opts.Scheme
	if scheme == (topic.Scheme{}) {
		scheme = topic.Canonical
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &Router{
		transport: opts.Transport,
		scheme:    scheme,
		logger:    logger,
		onError:   opts.OnError,
		ops:       make(chan *routerOp, queueSize),
		events:    make(chan event, queueSize),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		trie:      newTrie(scheme),
		refs:      newRefCounter(),
	}

	if r.transport == nil {
		r.setState(StateReady)
		close(r.ready)
	} else {
		r.setState(StateConnecting)
		if err := r.transport.Connect(&Events{router: r}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
	}

	go r.run()

	return r, nil
}

// State returns the current lifecycle state.
func (r *Router) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the fatal transport error that terminated the router, or nil
// if the router is still running or closed cleanly.
func (r *Router) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done returns a channel closed when the router reaches a terminal state.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

// WaitReady blocks until the router is ready, terminated, or the context
// expires.
func (r *Router) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler under a pattern in the router's canonical
// scheme and blocks until the subscription is active.
//
// Malformed patterns are rejected here, before anything is indexed. The
// first subscription for a pattern additionally waits for the transport to
// confirm its real subscription; later ones for the same pattern complete
// as soon as the local index is updated.
//
// The context abandons the wait only — an operation already queued still
// executes. Cancelling mid-subscribe may therefore leave the subscription
// active; unsubscribe it via the returned Subscription if that matters.
func (r *Router) Subscribe(ctx context.Context, pattern string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := r.scheme.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
		router:  r,
	}

	op := &routerOp{kind: opSubscribe, sub: sub, done: make(chan error, 1)}
	if err := r.do(ctx, op); err != nil {
		return nil, err
	}

	return sub, nil
}

// Unsubscribe removes a subscription and blocks until it is inactive. The
// last subscription for a pattern additionally waits for the transport to
// confirm the real unsubscribe. Removing a subscription that is already
// gone is a no-op.
func (r *Router) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return nil
	}
	op := &routerOp{kind: opUnsubscribe, sub: sub, done: make(chan error, 1)}
	return r.do(ctx, op)
}

// Publish sends a payload to a concrete topic in the router's canonical
// scheme. With a transport the message travels through the broker, which is
// the single delivery path back to local subscribers; without one it fans
// out locally.
func (r *Router) Publish(ctx context.Context, topicName string, payload []byte) error {
	if err := r.scheme.ValidateTopic(topicName); err != nil {
		return err
	}
	op := &routerOp{kind: opPublish, topic: topicName, payload: payload, done: make(chan error, 1)}
	return r.do(ctx, op)
}

// Close shuts the router down: pending operations are rejected, the
// transport is disconnected, and all subscriptions are dropped atomically.
// Close is idempotent — concurrent and repeated calls all observe the one
// shutdown and return nil.
func (r *Router) Close(ctx context.Context) error {
	op := &routerOp{kind: opClose, done: make(chan error, 1)}
	return r.do(ctx, op)
}

// do queues an operation to the routing goroutine and waits for its
// completion. The context abandons the wait; it never cancels an operation
// that has been queued.
func (r *Router) do(ctx context.Context, op *routerOp) error {
	select {
	case r.ops <- op:
	case <-r.done:
		return r.terminalResult(op)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.done:
		return err
	case <-r.done:
		// The router terminated while the operation was queued. Prefer a
		// real completion if the routing goroutine got to it first.
		select {
		case err := <-op.done:
			return err
		default:
			return r.terminalResult(op)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalResult is the outcome of an operation issued against a router
// that has already terminated: close joins the finished shutdown, anything
// else is a closed-state violation.
func (r *Router) terminalResult(op *routerOp) error {
	if op.kind == opClose {
		return nil
	}
	return ErrClosed
}

func (r *Router) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Router) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// notify queues a transport event, giving up once the router terminates.
func (r *Router) notify(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// run is the routing goroutine. It exclusively owns the trie, the
// reference counter and the lifecycle state, and processes operations
// strictly in issue order, which realises the completion-ordering
// guarantee. It exits once a terminal state is reached.
func (r *Router) run() {
	for {
		select {
		case op := <-r.ops:
			if r.handleOp(op) {
				r.drainOps()
				return
			}
		case ev := <-r.events:
			if r.handleEvent(ev) {
				r.drainOps()
				return
			}
		}
	}
}

// handleOp processes one caller operation. It reports whether the router
// reached a terminal state.
func (r *Router) handleOp(op *routerOp) bool {
	if op.kind == opClose {
		r.shutdown(nil)
		op.done <- nil
		return true
	}

	// Not ready yet: defer and replay once the transport reports ready.
	// Patterns and topics were validated at the call site, so nothing
	// queued here can fail validation later.
	if r.State() == StateConnecting {
		r.pending = append(r.pending, op)
		return false
	}

	r.apply(op)
	return false
}

// apply executes an operation against the live index and transport.
func (r *Router) apply(op *routerOp) {
	switch op.kind {
	case opSubscribe:
		op.done <- r.applySubscribe(op.sub)
	case opUnsubscribe:
		op.done <- r.applyUnsubscribe(op.sub)
	case opPublish:
		op.done <- r.applyPublish(op.topic, op.payload)
	case opClose:
		// Handled in handleOp; never queued to pending.
	}
}

func (r *Router) applySubscribe(sub *Subscription) error {
	segments := r.scheme.Split(sub.pattern)
	r.trie.insert(segments, sub)

	if r.refs.add(sub.pattern) && r.transport != nil {
		native := topic.Translate(sub.pattern, r.scheme, r.transport.Scheme())
		if err := r.transport.Subscribe(context.Background(), native); err != nil {
			// Roll back so the failed subscription is never partially
			// indexed.
			r.trie.remove(segments, sub.id)
			r.refs.remove(sub.pattern)
			return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
		}
		r.logger.Debug("transport subscribed", "pattern", sub.pattern, "native", native)
	}

	return nil
}

func (r *Router) applyUnsubscribe(sub *Subscription) error {
	if !r.trie.remove(r.scheme.Split(sub.pattern), sub.id) {
		return nil
	}

	if r.refs.remove(sub.pattern) && r.transport != nil {
		native := topic.Translate(sub.pattern, r.scheme, r.transport.Scheme())
		if err := r.transport.Unsubscribe(context.Background(), native); err != nil {
			return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
		}
		r.logger.Debug("transport unsubscribed", "pattern", sub.pattern, "native", native)
	}

	return nil
}

func (r *Router) applyPublish(topicName string, payload []byte) error {
	if r.transport == nil {
		r.dispatch(topicName, payload)
		return nil
	}

	native := topic.Translate(topicName, r.scheme, r.transport.Scheme())
	if err := r.transport.Publish(context.Background(), native, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// handleEvent processes one transport notification. It reports whether the
// router reached a terminal state.
func (r *Router) handleEvent(ev event) bool {
	switch ev.kind {
	case eventReady:
		if r.State() != StateConnecting {
			return false // duplicate ready
		}
		r.setState(StateReady)
		close(r.ready)
		r.logger.Info("router ready", "queued_ops", len(r.pending))
		// Replay operations issued before readiness, in issue order.
		for _, op := range r.pending {
			r.apply(op)
		}
		r.pending = nil

	case eventMessage:
		canonical := ev.topic
		if r.transport != nil {
			canonical = topic.Translate(ev.topic, r.transport.Scheme(), r.scheme)
		}
		r.dispatch(canonical, ev.payload)

	case eventError:
		r.logger.Error("transport error", "error", ev.err)
		if r.onError != nil {
			r.onError(ev.err)
		}
		r.shutdown(ev.err)
		return true

	case eventClosed:
		// Unsolicited disconnect; a router-initiated close never gets
		// here because Disconnect confirms by returning.
		r.logger.Warn("transport closed unexpectedly")
		if r.onError != nil {
			r.onError(ErrTransportClosed)
		}
		r.shutdown(ErrTransportClosed)
		return true
	}

	return false
}

// dispatch fans an inbound message out to every matching subscription.
// Each handler runs in its own goroutine with panic recovery, so one
// failing delivery target cannot prevent delivery to the rest or corrupt
// the routing loop.
func (r *Router) dispatch(canonicalTopic string, payload []byte) {
	matches := r.trie.match(r.scheme.Split(canonicalTopic))
	if len(matches) == 0 {
		return
	}

	msg := Message{Topic: canonicalTopic, Payload: payload}
	for _, sub := range matches {
		go r.invoke(sub, msg)
	}
}

func (r *Router) invoke(sub *Subscription, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic recovered",
				"pattern", sub.pattern,
				"topic", msg.Topic,
				"panic", rec,
			)
		}
	}()
	sub.handler(msg)
}

// shutdown performs the single close sequence: reject deferred operations,
// disconnect the transport, drop all subscriptions atomically, and record
// the terminal state. cause is nil for a clean close.
func (r *Router) shutdown(cause error) {
	r.setState(StateClosing)

	// Operations deferred while connecting can no longer complete; a
	// closed-state rejection is their observable signal.
	for _, op := range r.pending {
		op.done <- ErrClosed
	}
	r.pending = nil

	if r.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		if err := r.transport.Disconnect(ctx); err != nil {
			r.logger.Warn("transport disconnect", "error", err)
		}
		cancel()
	}

	r.trie = newTrie(r.scheme)
	r.refs.clear()

	if cause != nil {
		r.setErr(cause)
		r.setState(StateErrored)
	} else {
		r.setState(StateClosed)
	}
	r.logger.Info("router stopped", "state", r.State().String())

	close(r.done)
}

// drainOps completes operations still buffered when the routing goroutine
// exits. Later arrivals are handled by do observing the done channel.
func (r *Router) drainOps() {
	for {
		select {
		case op := <-r.ops:
			op.done <- r.terminalResult(op)
		default:
			return
		}
	}
}
