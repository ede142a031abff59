package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBusMessage records one message crossing a bus boundary.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Safe to call on a nil or disconnected client (no-op).
//
// Parameters:
//   - bus: Name of the bus the message crossed
//   - direction: "publish" for outbound, "deliver" for inbound
//   - bytes: Payload size
func (c *Client) WriteBusMessage(bus string, direction string, bytes int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bus_messages",
		map[string]string{
			"bus":       bus,
			"direction": direction,
		},
		map[string]interface{}{
			"count": 1,
			"bytes": bytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeForward records one message forwarded by a bridge rule.
//
// Parameters:
//   - rule: Name of the bridge rule
//   - source: Source bus name
//   - target: Target bus name
func (c *Client) WriteBridgeForward(rule string, source string, target string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_forwards",
		map[string]string{
			"rule":   rule,
			"source": source,
			"target": target,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRouterState records a router lifecycle transition.
//
// Parameters:
//   - bus: Name of the bus
//   - state: New state name (idle, connecting, ready, closing, closed, errored)
func (c *Client) WriteRouterState(bus string, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"router_state",
		map[string]string{
			"bus": bus,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
