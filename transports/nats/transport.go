package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/topic"
)

// Scheme is NATS's native subject syntax: dot-separated tokens, "*" for
// one token, ">" for the rest of the subject.
var Scheme = topic.Scheme{Separator: ".", Single: "*", Multi: ">"}

// defaultConnectTimeout bounds the initial server connection.
const defaultConnectTimeout = 10 * time.Second

// Config contains NATS server connection settings.
type Config struct {
	// URL is the server URL ("nats://host:4222"). Empty means the
	// client's default (localhost).
	URL string `yaml:"url"`

	// Name identifies this connection to the server, for monitoring.
	Name string `yaml:"name"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ReconnectWait is the delay between reconnect attempts, in seconds.
	ReconnectWait int `yaml:"reconnect_wait"`

	// MaxReconnects limits reconnect attempts before the connection is
	// declared dead. Zero means retry forever.
	MaxReconnects int `yaml:"max_reconnects"`
}

// withDefaults fills in unset fields.
func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = natsgo.DefaultURL
	}
	if c.Name == "" {
		c.Name = "manifold"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2
	}
	return c
}

// Transport connects a bus.Router to a NATS server.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg  Config
	conn *natsgo.Conn

	// subscriptions tracks live subjects so Unsubscribe can retract them.
	subscriptions map[string]*natsgo.Subscription
	subMu         sync.Mutex

	events   *bus.Events
	eventsMu sync.RWMutex

	// closing suppresses the closed notification for a disconnect the
	// router itself initiated.
	closing   bool
	closingMu sync.Mutex

	logger bus.Logger
}

// New creates a NATS transport. No connection is made until a bus.Router
// drives Connect.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:           cfg.withDefaults(),
		subscriptions: make(map[string]*natsgo.Subscription),
	}
}

// SetLogger sets a logger for reconnection diagnostics.
func (t *Transport) SetLogger(logger bus.Logger) {
	t.logger = logger
}

// Scheme implements bus.Transport.
func (t *Transport) Scheme() topic.Scheme {
	return Scheme
}

// Connect establishes the server connection. nats.Connect is synchronous,
// so readiness is signalled before returning; the client library handles
// reconnection and subscription restoration on its own afterwards.
func (t *Transport) Connect(events *bus.Events) error {
	t.eventsMu.Lock()
	t.events = events
	t.eventsMu.Unlock()

	maxReconnects := t.cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1 // nats.go convention: -1 retries forever
	}

	opts := []natsgo.Option{
		natsgo.Name(t.cfg.Name),
		natsgo.Timeout(defaultConnectTimeout),
		natsgo.ReconnectWait(time.Duration(t.cfg.ReconnectWait) * time.Second),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			t.warn("NATS disconnected, reconnecting", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			t.warn("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		natsgo.ClosedHandler(func(nc *natsgo.Conn) {
			t.handleClosed(nc)
		}),
	}
	if t.cfg.Username != "" {
		opts = append(opts, natsgo.UserInfo(t.cfg.Username, t.cfg.Password))
	}

	conn, err := natsgo.Connect(t.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	t.conn = conn

	events.Ready()
	return nil
}

// handleClosed fires when the connection is permanently closed. A close the
// router initiated confirms through Disconnect returning; anything else is
// the client library giving up on reconnection.
func (t *Transport) handleClosed(nc *natsgo.Conn) {
	t.closingMu.Lock()
	initiated := t.closing
	t.closingMu.Unlock()
	if initiated {
		return
	}

	events := t.sink()
	if events == nil {
		return
	}
	if err := nc.LastError(); err != nil {
		events.Error(fmt.Errorf("nats: connection lost: %w", err))
	} else {
		events.Closed()
	}
}

// Subscribe issues a server-level subscription for the subject pattern.
func (t *Transport) Subscribe(_ context.Context, pattern string) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	sub, err := t.conn.Subscribe(pattern, func(msg *natsgo.Msg) {
		if events := t.sink(); events != nil {
			events.Message(msg.Subject, msg.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	t.subMu.Lock()
	t.subscriptions[pattern] = sub
	t.subMu.Unlock()
	return nil
}

// Unsubscribe retracts a server-level subscription.
func (t *Transport) Unsubscribe(_ context.Context, pattern string) error {
	t.subMu.Lock()
	sub, ok := t.subscriptions[pattern]
	delete(t.subscriptions, pattern)
	t.subMu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Publish sends a payload to a concrete subject.
func (t *Transport) Publish(_ context.Context, subject string, payload []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Disconnect drains the connection so in-flight messages settle, then
// closes it. Returning confirms the disconnect to the router.
func (t *Transport) Disconnect(_ context.Context) error {
	if t.conn == nil {
		return nil
	}

	t.closingMu.Lock()
	t.closing = true
	t.closingMu.Unlock()

	if err := t.conn.Drain(); err != nil {
		// Drain can fail on an already-dead connection; fall back to a
		// hard close so shutdown still completes.
		t.conn.Close()
	}
	return nil
}

func (t *Transport) sink() *bus.Events {
	t.eventsMu.RLock()
	defer t.eventsMu.RUnlock()
	return t.events
}

func (t *Transport) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
