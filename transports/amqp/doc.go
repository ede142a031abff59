// Package amqp provides the AMQP 0-9-1 transport for Manifold, built on a
// topic exchange.
//
// Each transport instance declares (or reuses) one topic exchange and one
// exclusive server-named queue. Subscribing binds the queue to the exchange
// with the pattern as the binding key; publishing sends to the exchange
// with the topic as the routing key. AMQP's binding-key syntax (".", "*",
// "#") maps one-to-one onto the canonical wildcard semantics, so
// translation at this boundary is a pure symbol substitution.
package amqp
