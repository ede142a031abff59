// Package bus implements the transport-agnostic publish/subscribe engine
// at the heart of Manifold.
//
// A Router multiplexes any number of local subscribers onto one logical
// connection: callers subscribe with hierarchical patterns ("sensors/+/temp",
// "orders/#") and publish to concrete topics, and the Router delivers each
// inbound message to every matching subscriber exactly once. Patterns are
// indexed in a segment trie, so matching cost grows with topic depth rather
// than with the number of subscriptions.
//
// # Architecture
//
// The Router owns a single routing goroutine. All subscribe, unsubscribe,
// publish and close operations are serialised onto it, which is what makes
// the subscription index safe without fine-grained locking and guarantees
// that operations complete in the order they were issued. Operations issued
// before the transport reports readiness are queued and replayed, in order,
// once it does.
//
// A reference counter sits between local subscriptions and the transport:
// only the first subscription for a pattern triggers a real transport-level
// subscribe, and only the removal of the last one triggers an unsubscribe.
// Two hundred local subscribers to "sensors/#" cost one broker subscription.
//
// # Transports
//
// A Transport supplies real connectivity to one messaging backend (MQTT,
// NATS, Redis, AMQP, or the in-process broker) and reports back through the
// Events it receives at Connect. Each transport declares its native topic
// syntax as a topic.Scheme; the Router translates between that syntax and
// its canonical scheme at the boundary, so the routing engine itself never
// hard-codes a separator or wildcard token.
//
// A Router constructed without a transport is a pure in-process bus: it is
// ready immediately and publishes fan out locally. The memory transport
// composes such a Router to give several Routers a shared exchange.
//
// # Usage
//
//	r, err := bus.New(bus.Options{Transport: tr})
//	if err != nil {
//	    return err
//	}
//	defer r.Close(context.Background())
//
//	sub, err := r.Subscribe(ctx, "sensors/+/temp", func(msg bus.Message) {
//	    log.Printf("%s = %s", msg.Topic, msg.Payload)
//	})
//
//	err = r.Publish(ctx, "sensors/kitchen/temp", []byte("21.5"))
package bus
