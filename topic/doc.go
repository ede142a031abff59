// Package topic defines the canonical topic model shared by every Manifold
// transport.
//
// A topic is an ordered sequence of non-empty string segments joined by a
// separator ("sensors/kitchen/temp"). A pattern is a topic in which segments
// may be wildcards: the single-level wildcard matches exactly one segment,
// the multi-level wildcard matches zero or more trailing segments and must
// be the final segment of the pattern.
//
// Each transport speaks its own topic syntax (MQTT uses "/", "+" and "#";
// NATS uses ".", "*" and ">"; AMQP topic exchanges use ".", "*" and "#").
// A Scheme captures one such syntax, and Translate converts topics and
// patterns between schemes segment by segment. Inside the routing engine
// everything is held in a single canonical Scheme; translation happens only
// at the transport boundary.
//
// Topics that contain a scheme's separator or wildcard tokens as literal
// data are not supported: segments are defined by the separator, and the
// translation guarantee (Translate there-and-back is the identity) holds
// only for topics free of transport-reserved tokens.
package topic
