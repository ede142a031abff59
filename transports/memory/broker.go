package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/topic"
)

// ErrBrokerClosed is returned for operations against a closed broker.
var ErrBrokerClosed = errors.New("memory: broker closed")

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	// Logger receives the exchange router's log output. Nil means silent.
	Logger bus.Logger
}

// Broker is a shared in-process exchange. Transports attached to the same
// broker share one topic space; a publish through any of them fans out to
// every matching subscription on every attached router, the publisher's
// own included.
type Broker struct {
	exchange *bus.Router
}

// NewBroker creates an in-process exchange.
func NewBroker(opts BrokerOptions) (*Broker, error) {
	exchange, err := bus.New(bus.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return &Broker{exchange: exchange}, nil
}

// Close shuts the exchange down. Attached routers see subsequent
// operations fail; close them independently.
func (b *Broker) Close(ctx context.Context) error {
	return b.exchange.Close(ctx)
}

// Transport attaches one bus.Router to a Broker. It implements
// bus.Transport by delegating pattern subscriptions and publishes to the
// broker's exchange router.
type Transport struct {
	broker *Broker

	mu     sync.Mutex
	events *bus.Events
	subs   map[string]*bus.Subscription // pattern -> exchange subscription
	closed bool
}

// New creates a transport endpoint attached to the broker.
func New(broker *Broker) *Transport {
	return &Transport{
		broker: broker,
		subs:   make(map[string]*bus.Subscription),
	}
}

// Scheme returns the canonical scheme: the in-process exchange has no
// foreign topic syntax to translate to.
func (t *Transport) Scheme() topic.Scheme {
	return topic.Canonical
}

// Connect records the event sink and reports readiness immediately; there
// is no connection to establish.
func (t *Transport) Connect(events *bus.Events) error {
	t.mu.Lock()
	t.events = events
	t.mu.Unlock()
	events.Ready()
	return nil
}

// Subscribe registers the pattern on the exchange. Matching messages are
// forwarded to the owning router as inbound deliveries.
func (t *Transport) Subscribe(ctx context.Context, pattern string) error {
	sub, err := t.broker.exchange.Subscribe(ctx, pattern, t.forward)
	if err != nil {
		if errors.Is(err, bus.ErrClosed) {
			return ErrBrokerClosed
		}
		return err
	}

	t.mu.Lock()
	closed := t.closed
	if !closed {
		t.subs[pattern] = sub
	}
	t.mu.Unlock()

	if closed {
		_ = sub.Unsubscribe(ctx)
		return ErrBrokerClosed
	}
	return nil
}

// Unsubscribe removes the pattern's exchange subscription.
func (t *Transport) Unsubscribe(ctx context.Context, pattern string) error {
	t.mu.Lock()
	sub, ok := t.subs[pattern]
	delete(t.subs, pattern)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(ctx); err != nil && !errors.Is(err, bus.ErrClosed) {
		return err
	}
	return nil
}

// Publish hands the message to the exchange for fan-out.
func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte) error {
	if err := t.broker.exchange.Publish(ctx, topicName, payload); err != nil {
		if errors.Is(err, bus.ErrClosed) {
			return ErrBrokerClosed
		}
		return err
	}
	return nil
}

// Disconnect detaches from the broker: all exchange subscriptions are
// removed and no further deliveries are forwarded.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	subs := t.subs
	t.subs = make(map[string]*bus.Subscription)
	t.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil && !errors.Is(err, bus.ErrClosed) {
			return err
		}
	}
	return nil
}

// forward relays an exchange delivery into the owning router.
func (t *Transport) forward(msg bus.Message) {
	t.mu.Lock()
	events, closed := t.events, t.closed
	t.mu.Unlock()

	if events == nil || closed {
		return
	}
	events.Message(msg.Topic, msg.Payload)
}
