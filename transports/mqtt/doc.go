// Package mqtt provides the MQTT transport for Manifold.
//
// It wraps paho.mqtt.golang behind the bus.Transport contract: the broker
// connection, auto-reconnect with exponential backoff, and restoration of
// transport-level subscriptions after a reconnect all live here, while
// pattern matching and local fan-out stay in the bus package.
//
// MQTT's native topic syntax matches Manifold's canonical scheme ("/",
// "+", "#"), so translation at this boundary is the identity.
//
// # Usage
//
//	tr, err := mqtt.New(mqtt.Config{Host: "localhost", Port: 1883, ClientID: "manifold-1"})
//	if err != nil {
//	    return err
//	}
//	r, err := bus.New(bus.Options{Transport: tr})
//
// # Security Considerations
//
//   - Enable TLS for any broker not on localhost (Config.TLS).
//   - Credentials are passed to the broker as-is; payloads are not
//     encrypted beyond TLS transport.
package mqtt
