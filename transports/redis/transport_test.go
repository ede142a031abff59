package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/manifoldbus/manifold/topic"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %q, want localhost:6379", cfg.Addr)
	}

	cfg = Config{Addr: "cache.example:6380"}.withDefaults()
	if cfg.Addr != "cache.example:6380" {
		t.Errorf("explicit Addr overwritten: %q", cfg.Addr)
	}
}

func TestSchemeTranslation(t *testing.T) {
	tr := New(Config{})

	tests := []struct {
		name      string
		canonical string
		want      string
	}{
		{name: "literal", canonical: "sensors/kitchen/temp", want: "sensors/kitchen/temp"},
		{name: "single wildcard collapses to glob", canonical: "sensors/+/temp", want: "sensors/*/temp"},
		{name: "multi wildcard collapses to glob", canonical: "sensors/#", want: "sensors/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := topic.Translate(tt.canonical, topic.Canonical, tr.Scheme())
			if got != tt.want {
				t.Errorf("Translate(%q) = %q, want %q", tt.canonical, got, tt.want)
			}
		})
	}
}

func TestGlobAmbiguityResolvesToMulti(t *testing.T) {
	// Redis's single wildcard token serves both canonical wildcards.
	// Translating back out of the Redis scheme resolves a final "*" to
	// the multi-level wildcard, per the documented policy.
	tr := New(Config{})
	got := topic.Translate("sensors/*", tr.Scheme(), topic.Canonical)
	if got != "sensors/#" {
		t.Errorf("Translate(sensors/*) = %q, want sensors/#", got)
	}
}

func TestOperationsBeforeConnect(t *testing.T) {
	tr := New(Config{})
	ctx := context.Background()

	if err := tr.Subscribe(ctx, "a/*"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe before connect = %v, want ErrNotConnected", err)
	}
	if err := tr.Publish(ctx, "a/b", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish before connect = %v, want ErrNotConnected", err)
	}
	if err := tr.Disconnect(ctx); err != nil {
		t.Errorf("Disconnect before connect = %v, want nil", err)
	}
}
