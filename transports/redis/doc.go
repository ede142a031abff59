// Package redis provides the Redis pub/sub transport for Manifold.
//
// Subscriptions use PSUBSCRIBE with glob patterns. Redis has only one
// wildcard token — "*" — and it matches across separator characters, so
// both canonical wildcards translate to "*" and a pattern like
// "sensors/+/temp" over-matches at the server ("sensors/a/b/temp" slips
// through). That is deliberate and safe: every inbound message is
// re-matched against the local subscription trie, which applies the exact
// canonical semantics and silently drops the excess.
//
// Redis pub/sub is fire-and-forget with no delivery guarantees, which is
// exactly the contract the bus exposes; nothing is persisted.
package redis
