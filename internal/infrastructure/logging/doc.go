// Package logging wraps log/slog for the Manifold daemon: one handler
// (JSON or text, level-filtered) with service and version stamped on
// every record, configured from the logging section of config.yaml.
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("bus ready", "bus", "plant")
//
// Library packages do not depend on this package; they accept the small
// bus.Logger interface, which *Logger satisfies via its embedded
// slog.Logger. Never log payloads, passwords or tokens.
package logging
