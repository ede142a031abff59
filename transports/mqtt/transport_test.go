package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/manifoldbus/manifold/topic"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Host)
	}
	if cfg.Port != 1883 {
		t.Errorf("Port = %d, want 1883", cfg.Port)
	}
	if cfg.ClientID != "manifold" {
		t.Errorf("ClientID = %q, want manifold", cfg.ClientID)
	}
	if cfg.Reconnect.InitialDelay != 1 || cfg.Reconnect.MaxDelay != 60 {
		t.Errorf("Reconnect = %+v, want {1 60}", cfg.Reconnect)
	}
}

func TestConfigDefaultsPreserveExplicitValues(t *testing.T) {
	cfg := Config{
		Host:     "broker.example",
		Port:     8883,
		ClientID: "node-7",
		Reconnect: ReconnectConfig{
			InitialDelay: 2,
			MaxDelay:     30,
		},
	}.withDefaults()

	if cfg.Host != "broker.example" || cfg.Port != 8883 || cfg.ClientID != "node-7" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if cfg.Reconnect.InitialDelay != 2 || cfg.Reconnect.MaxDelay != 30 {
		t.Errorf("explicit reconnect overwritten: %+v", cfg.Reconnect)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "plain", cfg: Config{Host: "localhost", Port: 1883}, want: "tcp://localhost:1883"},
		{name: "tls", cfg: Config{Host: "broker.example", Port: 8883, TLS: true}, want: "ssl://broker.example:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.brokerURL(); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidQoS(t *testing.T) {
	for _, qos := range []int{-1, 3, 7} {
		if _, err := New(Config{QoS: qos}); !errors.Is(err, ErrInvalidQoS) {
			t.Errorf("New(QoS=%d) = %v, want ErrInvalidQoS", qos, err)
		}
	}

	for qos := 0; qos <= 2; qos++ {
		if _, err := New(Config{QoS: qos}); err != nil {
			t.Errorf("New(QoS=%d) = %v, want nil", qos, err)
		}
	}
}

func TestScheme(t *testing.T) {
	tr, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := topic.Scheme{Separator: "/", Single: "+", Multi: "#"}
	if tr.Scheme() != want {
		t.Errorf("Scheme() = %+v, want %+v", tr.Scheme(), want)
	}
	// MQTT syntax is the canonical syntax; translation must be identity.
	if got := topic.Translate("a/+/b/#", topic.Canonical, tr.Scheme()); got != "a/+/b/#" {
		t.Errorf("Translate to MQTT changed pattern: %q", got)
	}
}

func TestOperationsBeforeConnect(t *testing.T) {
	tr, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Subscribe(context.Background(), "a/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe before connect = %v, want ErrNotConnected", err)
	}
	if err := tr.Publish(context.Background(), "a/b", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish before connect = %v, want ErrNotConnected", err)
	}
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect before connect = %v, want nil", err)
	}
}
