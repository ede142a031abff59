package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/topic"
)

// Rewrite describes an optional topic prefix substitution applied to
// forwarded messages.
//
// If From is non-empty, topics carrying that prefix (segment-aligned) have
// it replaced by To. If From is empty and To is non-empty, To is prepended
// to every forwarded topic. If both are empty, topics pass unchanged.
type Rewrite struct {
	From string
	To   string
}

// Rule describes what a bridge forwards.
type Rule struct {
	// Name identifies the rule in logs, metrics, and the journal.
	Name string

	// Patterns are the canonical subscription patterns forwarded from the
	// source bus.
	Patterns []string

	// Rewrite optionally rewrites a topic prefix during forwarding.
	Rewrite Rewrite
}

// Options configures a Bridge.
type Options struct {
	// Source is the bus to subscribe on. Required.
	Source *bus.Router

	// Target is the bus to republish on. Required.
	Target *bus.Router

	// Rule describes the patterns and rewrite. Required.
	Rule Rule

	// Logger receives forwarding diagnostics. Optional.
	Logger bus.Logger

	// OnForward is invoked after each successful forward with the rule name
	// and the message as published on the target. Optional. Called from
	// handler goroutines; implementations must be concurrency-safe.
	OnForward func(rule string, msg bus.Message)
}

// Bridge forwards matching messages from a source bus to a target bus.
//
// Thread Safety:
//   - Start and Stop are safe for concurrent use.
//   - Forwarding runs on the source bus's handler goroutines.
type Bridge struct {
	opts Options

	mu      sync.Mutex
	subs    []*bus.Subscription
	started bool

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bridge for the given rule. The bridge is inert until Start.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = bus.NopLogger()
	}
	return &Bridge{opts: opts}
}

// Rule returns the rule this bridge forwards.
func (b *Bridge) Rule() Rule {
	return b.opts.Rule
}

// Start subscribes to every pattern in the rule on the source bus.
//
// If any subscription fails, the ones already made are rolled back and the
// bridge stays stopped.
func (b *Bridge) Start(ctx context.Context) error {
	if b.opts.Source == nil || b.opts.Target == nil {
		return ErrNilBus
	}
	if len(b.opts.Rule.Patterns) == 0 {
		return ErrNoPatterns
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	var subs []*bus.Subscription
	for _, pattern := range b.opts.Rule.Patterns {
		sub, err := b.opts.Source.Subscribe(ctx, pattern, b.forward)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe(ctx)
			}
			return fmt.Errorf("bridge %s: subscribing %q: %w", b.opts.Rule.Name, pattern, err)
		}
		subs = append(subs, sub)
	}

	b.subs = subs
	b.started = true
	b.opts.Logger.Info("bridge started",
		"rule", b.opts.Rule.Name,
		"patterns", len(subs),
	)
	return nil
}

// Stop removes the bridge's subscriptions from the source bus.
// Safe to call more than once, and on a bridge that never started.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.started = false
	b.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if err := s.Unsubscribe(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if len(subs) > 0 {
		b.opts.Logger.Info("bridge stopped",
			"rule", b.opts.Rule.Name,
			"forwarded", b.forwarded.Load(),
		)
	}
	return firstErr
}

// Forwarded returns the number of messages successfully republished.
func (b *Bridge) Forwarded() uint64 {
	return b.forwarded.Load()
}

// Dropped returns the number of messages that failed to republish.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// forward republishes one message on the target bus.
func (b *Bridge) forward(msg bus.Message) {
	target := rewriteTopic(msg.Topic, b.opts.Rule.Rewrite)

	if err := b.opts.Target.Publish(context.Background(), target, msg.Payload); err != nil {
		b.dropped.Add(1)
		b.opts.Logger.Warn("bridge forward failed",
			"rule", b.opts.Rule.Name,
			"topic", target,
			"error", err,
		)
		return
	}

	b.forwarded.Add(1)
	if b.opts.OnForward != nil {
		b.opts.OnForward(b.opts.Rule.Name, bus.Message{Topic: target, Payload: msg.Payload})
	}
}

// rewriteTopic applies the prefix substitution to a canonical topic.
func rewriteTopic(t string, rw Rewrite) string {
	sep := topic.Canonical.Separator

	if rw.From == "" {
		if rw.To == "" {
			return t
		}
		return rw.To + sep + t
	}

	if t == rw.From {
		if rw.To == "" {
			return t
		}
		return rw.To
	}

	if strings.HasPrefix(t, rw.From+sep) {
		rest := strings.TrimPrefix(t, rw.From+sep)
		if rw.To == "" {
			return rest
		}
		return rw.To + sep + rest
	}

	return t
}
