// Manifold - transport-agnostic message bus daemon
//
// This is the main entry point for the Manifold daemon. It loads the
// configuration, builds one router per configured bus (memory, MQTT, NATS,
// Redis, AMQP), wires bridge rules between buses, and serves the HTTP API
// and WebSocket tap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/internal/api"
	"github.com/manifoldbus/manifold/internal/bridge"
	"github.com/manifoldbus/manifold/internal/infrastructure/config"
	"github.com/manifoldbus/manifold/internal/infrastructure/database"
	"github.com/manifoldbus/manifold/internal/infrastructure/logging"
	"github.com/manifoldbus/manifold/internal/infrastructure/metrics"
	"github.com/manifoldbus/manifold/internal/journal"
	"github.com/manifoldbus/manifold/migrations"
	"github.com/manifoldbus/manifold/transports/amqp"
	"github.com/manifoldbus/manifold/transports/memory"
	"github.com/manifoldbus/manifold/transports/mqtt"
	"github.com/manifoldbus/manifold/transports/nats"
	"github.com/manifoldbus/manifold/transports/redis"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// readyTimeout bounds how long startup waits for each bus to reach ready.
const readyTimeout = 30 * time.Second

// closeTimeout bounds per-bus shutdown.
const closeTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequencing: each component adds a branch
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Manifold",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Apply the embedded schema
	if schemaErr := db.ApplySchema(ctx, migrations.Files); schemaErr != nil {
		return fmt.Errorf("applying schema: %w", schemaErr)
	}
	log.Info("database schema applied")

	// Journal repository (optional)
	var journalRepo journal.Repository
	if cfg.Journal.Enabled {
		journalRepo = journal.NewSQLiteRepository(db.DB)
		log.Info("journal enabled")
	} else {
		log.Info("journal disabled")
	}

	// Connect to InfluxDB metrics (optional)
	var metricsClient *metrics.Client
	if cfg.Metrics.Enabled {
		metricsClient, err = metrics.Connect(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting to metrics: %w", err)
		}
		defer func() {
			log.Info("closing metrics connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing metrics", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("metrics write error", "error", err)
		})
		log.Info("metrics connected", "url", cfg.Metrics.URL, "bucket", cfg.Metrics.Bucket)
	} else {
		log.Info("metrics disabled")
	}

	// Build one router per configured bus
	buses := make(map[string]*bus.Router, len(cfg.Buses))
	defer func() {
		for name, r := range buses {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if closeErr := r.Close(closeCtx); closeErr != nil {
				log.Error("error closing bus", "bus", name, "error", closeErr)
			}
			cancel()
		}
	}()

	for _, bc := range cfg.Buses {
		router, busErr := buildBus(bc, log, journalRepo, metricsClient)
		if busErr != nil {
			return fmt.Errorf("building bus %s: %w", bc.Name, busErr)
		}
		buses[bc.Name] = router

		readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		waitErr := router.WaitReady(readyCtx)
		cancel()
		if waitErr != nil {
			return fmt.Errorf("bus %s never became ready: %w", bc.Name, waitErr)
		}
		log.Info("bus ready", "bus", bc.Name, "transport", bc.Transport)

		journalWrite(log, journalRepo, &journal.Entry{
			Bus:    bc.Name,
			Kind:   journal.KindLifecycle,
			Detail: map[string]any{"state": router.State().String()},
		})
		metricsClient.WriteRouterState(bc.Name, router.State().String())

		// Observe all traffic for journal and metrics
		if journalRepo != nil || metricsClient.IsConnected() {
			if obsErr := observeBus(ctx, bc.Name, router, log, journalRepo, metricsClient); obsErr != nil {
				return fmt.Errorf("attaching observer to bus %s: %w", bc.Name, obsErr)
			}
		}
	}

	// Start bridges
	for _, brc := range cfg.Bridges {
		b := bridge.New(bridge.Options{
			Source: buses[brc.Source],
			Target: buses[brc.Target],
			Rule: bridge.Rule{
				Name:     brc.Name,
				Patterns: brc.Patterns,
				Rewrite:  bridge.Rewrite{From: brc.Translate.From, To: brc.Translate.To},
			},
			Logger: log.With("component", "bridge"),
			OnForward: func(rule string, msg bus.Message) {
				metricsClient.WriteBridgeForward(rule, brc.Source, brc.Target)
				metricsClient.WriteBusMessage(brc.Target, "publish", len(msg.Payload))
				journalWrite(log, journalRepo, &journal.Entry{
					Bus:    brc.Target,
					Kind:   journal.KindBridge,
					Topic:  msg.Topic,
					Detail: map[string]any{"rule": rule, "source": brc.Source},
				})
			},
		})
		if startErr := b.Start(ctx); startErr != nil {
			return fmt.Errorf("starting bridge %s: %w", brc.Name, startErr)
		}
		defer func(b *bridge.Bridge) {
			stopCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if stopErr := b.Stop(stopCtx); stopErr != nil {
				log.Error("error stopping bridge", "rule", b.Rule().Name, "error", stopErr)
			}
			cancel()
		}(b)
		log.Info("bridge started", "rule", brc.Name, "source", brc.Source, "target", brc.Target)
	}

	// Start API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Tap:     cfg.Tap,
		Logger:  log.With("component", "api"),
		Buses:   buses,
		Journal: journalRepo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, metricsClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Bridges
	// 3. Buses
	// 4. Metrics (if enabled)
	// 5. Database

	log.Info("Manifold stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MANIFOLD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MANIFOLD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildBus creates the transport named in the bus config and wraps it in a
// router.
func buildBus(bc config.BusConfig, log *logging.Logger, journalRepo journal.Repository, metricsClient *metrics.Client) (*bus.Router, error) {
	var transport bus.Transport

	switch bc.Transport {
	case "memory":
		broker, err := memory.NewBroker(memory.BrokerOptions{Logger: log.With("bus", bc.Name)})
		if err != nil {
			return nil, fmt.Errorf("creating memory broker: %w", err)
		}
		transport = memory.New(broker)
	case "mqtt":
		t, err := mqtt.New(bc.MQTT)
		if err != nil {
			return nil, fmt.Errorf("creating mqtt transport: %w", err)
		}
		transport = t
	case "nats":
		transport = nats.New(bc.NATS)
	case "redis":
		transport = redis.New(bc.Redis)
	case "amqp":
		transport = amqp.New(bc.AMQP)
	default:
		return nil, fmt.Errorf("unknown transport %q", bc.Transport)
	}

	busName := bc.Name
	return bus.New(bus.Options{
		Transport: transport,
		Logger:    log.With("bus", busName),
		QueueSize: bc.QueueSize,
		OnError: func(err error) {
			log.Error("bus failed", "bus", busName, "error", err)
			metricsClient.WriteRouterState(busName, "errored")
			journalWrite(log, journalRepo, &journal.Entry{
				Bus:    busName,
				Kind:   journal.KindError,
				Detail: map[string]any{"error": err.Error()},
			})
		},
	})
}

// observeBus subscribes to all traffic on a bus and records it to the
// journal and metrics.
func observeBus(ctx context.Context, name string, router *bus.Router, log *logging.Logger, journalRepo journal.Repository, metricsClient *metrics.Client) error {
	_, err := router.Subscribe(ctx, "#", func(m bus.Message) {
		metricsClient.WriteBusMessage(name, "deliver", len(m.Payload))
		journalWrite(log, journalRepo, &journal.Entry{
			Bus:   name,
			Kind:  journal.KindPublish,
			Topic: m.Topic,
		})
	})
	return err
}

// journalWrite records one journal entry, logging a warning rather than
// failing the caller when the write does not land. A no-op when the
// journal is disabled.
func journalWrite(log *logging.Logger, repo journal.Repository, e *journal.Entry) {
	if repo == nil {
		return
	}
	if err := repo.Create(context.Background(), e); err != nil {
		log.Warn("journal write failed", "bus", e.Bus, "kind", e.Kind, "error", err)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - metricsClient: Metrics client to check (may be nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, metricsClient *metrics.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if metricsClient.IsConnected() {
		if err := metricsClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
