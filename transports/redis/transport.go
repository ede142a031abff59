package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/topic"
)

// Scheme is Redis's glob pattern syntax. Redis has a single wildcard
// token, so both canonical wildcards map to "*"; the resulting server-side
// over-match is corrected by the local subscription trie.
var Scheme = topic.Scheme{Separator: "/", Single: "*", Multi: "*"}

// defaultConnectTimeout bounds the initial ping.
const defaultConnectTimeout = 10 * time.Second

// Config contains Redis connection settings.
type Config struct {
	// Addr is the server address ("host:port").
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// withDefaults fills in unset fields.
func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	return c
}

// Transport connects a bus.Router to a Redis server's pub/sub facility.
//
// One PubSub connection carries all pattern subscriptions; a background
// goroutine pumps its deliveries into the router. go-redis reconnects the
// PubSub connection itself and re-issues active PSUBSCRIBEs, so no restore
// bookkeeping is needed here.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg    Config
	client *goredis.Client
	pubsub *goredis.PubSub

	events   *bus.Events
	eventsMu sync.RWMutex

	// closing suppresses the closed notification for a disconnect the
	// router itself initiated.
	closing   bool
	closingMu sync.Mutex
}

// New creates a Redis transport. No connection is made until a bus.Router
// drives Connect.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

// Scheme implements bus.Transport.
func (t *Transport) Scheme() topic.Scheme {
	return Scheme
}

// Connect verifies the server with a ping, opens the PubSub connection and
// starts the delivery pump. Readiness is signalled before returning.
func (t *Transport) Connect(events *bus.Events) error {
	t.eventsMu.Lock()
	t.events = events
	t.eventsMu.Unlock()

	t.client = goredis.NewClient(&goredis.Options{
		Addr:     t.cfg.Addr,
		Username: t.cfg.Username,
		Password: t.cfg.Password,
		DB:       t.cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := t.client.Ping(ctx).Err(); err != nil {
		_ = t.client.Close()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// A PubSub with no patterns yet; PSubscribe adds them dynamically.
	t.pubsub = t.client.Subscribe(context.Background())
	go t.pump(t.pubsub.Channel())

	events.Ready()
	return nil
}

// pump forwards PubSub deliveries to the router until the channel closes.
func (t *Transport) pump(ch <-chan *goredis.Message) {
	for msg := range ch {
		if events := t.sink(); events != nil {
			events.Message(msg.Channel, []byte(msg.Payload))
		}
	}

	t.closingMu.Lock()
	initiated := t.closing
	t.closingMu.Unlock()
	if initiated {
		return
	}
	// The delivery channel only closes when the PubSub is closed; doing
	// so without a router-initiated disconnect means the connection died.
	if events := t.sink(); events != nil {
		events.Closed()
	}
}

// Subscribe issues a PSUBSCRIBE for the glob pattern.
func (t *Transport) Subscribe(ctx context.Context, pattern string) error {
	if t.pubsub == nil {
		return ErrNotConnected
	}
	if err := t.pubsub.PSubscribe(ctx, pattern); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe issues a PUNSUBSCRIBE for the glob pattern.
func (t *Transport) Unsubscribe(ctx context.Context, pattern string) error {
	if t.pubsub == nil {
		return ErrNotConnected
	}
	if err := t.pubsub.PUnsubscribe(ctx, pattern); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Publish sends a payload to a concrete channel.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if t.client == nil {
		return ErrNotConnected
	}
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Disconnect closes the PubSub connection and the client. Returning
// confirms the disconnect to the router.
func (t *Transport) Disconnect(_ context.Context) error {
	t.closingMu.Lock()
	t.closing = true
	t.closingMu.Unlock()

	if t.pubsub != nil {
		if err := t.pubsub.Close(); err != nil {
			return fmt.Errorf("redis: closing pubsub: %w", err)
		}
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			return fmt.Errorf("redis: closing client: %w", err)
		}
	}
	return nil
}

func (t *Transport) sink() *bus.Events {
	t.eventsMu.RLock()
	defer t.eventsMu.RUnlock()
	return t.events
}
