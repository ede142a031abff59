package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/topic"
)

// Scheme is MQTT's native topic syntax. It coincides with Manifold's
// canonical scheme, so translation at this boundary is the identity.
var Scheme = topic.Scheme{Separator: "/", Single: "+", Multi: "#"}

// Transport connects a bus.Router to an MQTT broker.
//
// It tracks active transport-level subscriptions so they can be restored
// after an automatic reconnect, and reports readiness to the router once
// the first connection is up.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg    Config
	client pahomqtt.Client

	// subscriptions tracks active patterns for re-subscription on reconnect.
	subscriptions map[string]struct{}
	subMu         sync.Mutex

	// events is the router's notification sink, set at Connect.
	events   *bus.Events
	eventsMu sync.RWMutex

	// readyOnce ensures the router sees at most one readiness signal even
	// though paho fires its OnConnect handler on every reconnect.
	readyOnce sync.Once

	// logger for reconnect/restore diagnostics (optional).
	logger bus.Logger
}

// New creates an MQTT transport. No connection is made until a bus.Router
// drives Connect.
func New(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Transport{
		cfg:           cfg,
		subscriptions: make(map[string]struct{}),
	}, nil
}

// SetLogger sets a logger for reconnection and restore diagnostics.
func (t *Transport) SetLogger(logger bus.Logger) {
	t.logger = logger
}

// Scheme implements bus.Transport.
func (t *Transport) Scheme() topic.Scheme {
	return Scheme
}

// Connect establishes the broker connection and retains the router's event
// sink. Readiness is signalled through events once the connection handshake
// completes; subsequent reconnects restore subscriptions silently.
func (t *Transport) Connect(events *bus.Events) error {
	t.eventsMu.Lock()
	t.events = events
	t.eventsMu.Unlock()

	opts := buildClientOptions(t.cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		// Auto-reconnect is on; the connection loss is transient unless
		// the backoff gives up, which paho never does on its own.
		t.warn("MQTT connection lost, reconnecting", "error", err)
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.deliver(msg)
	})

	t.client = pahomqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// handleConnect runs on every (re)connect: restore subscriptions, then
// signal readiness the first time through.
func (t *Transport) handleConnect() {
	t.restoreSubscriptions()
	t.readyOnce.Do(func() {
		if events := t.sink(); events != nil {
			events.Ready()
		}
	})
}

// restoreSubscriptions re-subscribes to all tracked patterns after a
// reconnect. The broker dropped them with the old session.
func (t *Transport) restoreSubscriptions() {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for pattern := range t.subscriptions {
		token := t.client.Subscribe(pattern, byte(t.cfg.QoS), t.messageHandler)
		if token.WaitTimeout(defaultOpTimeout) && token.Error() == nil {
			continue
		}
		t.warn("failed to restore subscription", "pattern", pattern, "error", token.Error())
	}
}

// Subscribe issues a broker-level subscription for the pattern.
func (t *Transport) Subscribe(_ context.Context, pattern string) error {
	if t.client == nil || !t.client.IsConnected() {
		return ErrNotConnected
	}

	t.subMu.Lock()
	t.subscriptions[pattern] = struct{}{}
	t.subMu.Unlock()

	token := t.client.Subscribe(pattern, byte(t.cfg.QoS), t.messageHandler)
	if !token.WaitTimeout(defaultOpTimeout) {
		t.dropTracked(pattern)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		t.dropTracked(pattern)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe retracts a broker-level subscription.
func (t *Transport) Unsubscribe(_ context.Context, pattern string) error {
	if t.client == nil || !t.client.IsConnected() {
		return ErrNotConnected
	}

	t.dropTracked(pattern)

	token := t.client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// Publish sends a payload to a concrete topic. Messages are not retained;
// the bus carries live traffic, not state.
func (t *Transport) Publish(_ context.Context, topicName string, payload []byte) error {
	if t.client == nil || !t.client.IsConnected() {
		return ErrNotConnected
	}

	token := t.client.Publish(topicName, byte(t.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Disconnect tears down the broker connection after a quiesce period for
// in-flight operations. Returning confirms the disconnect to the router.
func (t *Transport) Disconnect(_ context.Context) error {
	if t.client == nil {
		return nil
	}
	t.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// SubscriptionCount returns the number of tracked broker subscriptions.
// Useful for monitoring and tests.
func (t *Transport) SubscriptionCount() int {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	return len(t.subscriptions)
}

// messageHandler adapts paho deliveries to router events.
func (t *Transport) messageHandler(_ pahomqtt.Client, msg pahomqtt.Message) {
	t.deliver(msg)
}

func (t *Transport) deliver(msg pahomqtt.Message) {
	if events := t.sink(); events != nil {
		events.Message(msg.Topic(), msg.Payload())
	}
}

func (t *Transport) sink() *bus.Events {
	t.eventsMu.RLock()
	defer t.eventsMu.RUnlock()
	return t.events
}

func (t *Transport) dropTracked(pattern string) {
	t.subMu.Lock()
	delete(t.subscriptions, pattern)
	t.subMu.Unlock()
}

func (t *Transport) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
