// Package memory provides an in-process transport for Manifold.
//
// A Broker is a shared exchange: every bus.Router attached to it through a
// Transport sees every other's traffic, including its own publishes. The
// broker's fan-out is itself a transportless bus.Router, so the in-process
// path exercises exactly the same trie matching and reference counting as
// the networked transports.
//
// The memory transport is the natural choice for tests, for single-process
// deployments, and as the local leg of a bridge.
//
//	broker, _ := memory.NewBroker(memory.BrokerOptions{})
//	a, _ := bus.New(bus.Options{Transport: memory.New(broker)})
//	b, _ := bus.New(bus.Options{Transport: memory.New(broker)})
//	// a and b now share one topic space.
package memory
