// Package metrics provides InfluxDB-backed throughput metrics for Manifold.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Purpose
//
// This package handles time-series recording of:
//   - Per-bus message counts and payload sizes
//   - Bridge forward counts
//   - Router lifecycle transitions
//
// # Usage
//
//	client, err := metrics.Connect(cfg.Metrics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBusMessage("plant", "publish", len(payload))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Every write helper is a no-op on a nil or disconnected client, so
// callers never need to guard the disabled case.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package metrics
