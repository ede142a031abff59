package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// broker connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout is the maximum time to wait for publish, subscribe
	// and unsubscribe acknowledgements.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time allowed for pending operations
	// on disconnect, in milliseconds (the unit paho uses).
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Config contains MQTT broker connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// QoS is the quality-of-service level used for publishes and
	// subscriptions (0, 1 or 2).
	QoS int `yaml:"qos"`

	// Reconnect tunes the client's automatic reconnection backoff.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings, in seconds.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// withDefaults fills in unset fields.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientID == "" {
		c.ClientID = "manifold"
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = 1
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = 60
	}
	return c
}

// validate rejects settings paho would accept but misbehave on.
func (c Config) validate() error {
	if c.QoS < 0 || c.QoS > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// brokerURL builds the broker URL from host, port and TLS setting.
func (c Config) brokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// buildClientOptions creates paho options from transport config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials
//   - Clean session (subscription state is restored by the transport)
//   - Auto-reconnect with exponential backoff
//   - TLS configuration (if enabled)
func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.brokerURL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}
