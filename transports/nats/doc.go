// Package nats provides the NATS transport for Manifold.
//
// It maps the bus.Transport contract onto a nats.Conn: subjects are topics,
// and NATS's native syntax (".", "*", ">") is declared as the transport
// scheme so the routing engine translates canonical patterns like
// "orders/+/created" into "orders.*.created" at this boundary.
//
// The NATS client restores subscriptions across reconnects on its own, so
// unlike the MQTT transport this package keeps no restore bookkeeping; it
// only tracks live subscriptions so it can retract them on unsubscribe.
package nats
