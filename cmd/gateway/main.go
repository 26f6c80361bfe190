// Inventory Gateway - live subscription gateway for an inventory store
//
// This is the main entry point for the inventory gateway. The gateway:
//   - Serves WebSocket clients that query and watch inventory collections
//   - Replays changes missed while a client was disconnected
//   - Relays pub/sub bus messages to watching clients
//   - Exposes REST endpoints for record CRUD and bus publishing
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/inventory-gateway/internal/api"
	"github.com/nerrad567/inventory-gateway/internal/bus"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/database"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/inventory-gateway/internal/live"
	"github.com/nerrad567/inventory-gateway/internal/store"
	"github.com/nerrad567/inventory-gateway/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Shutdown runs in reverse start order through the defer chain: API server
// (closing every live session), bus, InfluxDB, MQTT, database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting inventory gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	st := store.New(db.DB)
	st.SetLogger(log)

	// Bus transport: MQTT unless the bus is pinned to this process
	var (
		mqttClient *mqtt.Client
		broker     bus.Broker
	)
	if cfg.Bus.Local {
		broker = bus.NewLocalBroker()
		log.Info("bus running in-process")
	} else {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		broker = mqttClient
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Gateway.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	eventBus := bus.New(broker, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0..2
	eventBus.SetLogger(log)
	defer func() {
		log.Info("closing bus")
		if closeErr := eventBus.Close(); closeErr != nil {
			log.Error("error closing bus", "error", closeErr)
		}
	}()

	// Live layer
	registry, err := live.BuildRegistry(cfg.Resources, cfg.Bus, st, eventBus, log)
	if err != nil {
		return fmt.Errorf("building resource registry: %w", err)
	}
	hub := live.NewHub()
	hub.SetLogger(log)
	dispatcher := live.NewDispatcher(registry)
	dispatcher.SetLogger(log)
	if influxClient != nil {
		hub.SetTelemetry(influxClient)
		dispatcher.SetTelemetry(influxClient)
	}
	log.Info("resource registry built", "resources", registry.Names())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Store:      st,
		Bus:        eventBus,
		Hub:        hub,
		Dispatcher: dispatcher,
		DB:         db,
		MQTT:       mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// connectMQTT connects to the broker and logs connection changes.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// getConfigPath returns the configuration file path.
// Uses GATEWAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient is nil when the bus is local; influxClient is nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
