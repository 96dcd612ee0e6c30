// Gray Logic MIoT - device to entity bridge
//
// This is the main entry point for the Gray Logic MIoT bridge. It loads the
// declared MIoT devices, builds one host entity per converter, keeps those
// entities in sync with device data pushed over MQTT, and serves them over
// REST, WebSocket and retained MQTT state topics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-miot/migrations"

	"github.com/nerrad567/gray-logic-miot/internal/api"
	"github.com/nerrad567/gray-logic-miot/internal/bridge"
	"github.com/nerrad567/gray-logic-miot/internal/customize"
	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/entity"
	"github.com/nerrad567/gray-logic-miot/internal/host"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds the final flush and restore snapshot.
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic MIoT",
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Metrics (collector is nil-safe when disabled)
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Namespace, nil)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
			collector.WriteFailed("influxdb")
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

	overrides, err := customize.Load(cfg.Customize.File)
	if err != nil {
		return fmt.Errorf("loading customize file: %w", err)
	}
	overrides.SetLogger(log.Component("customize"))
	if watchErr := overrides.Watch(ctx); watchErr != nil {
		log.Warn("customize hot reload disabled", "error", watchErr)
	}

	devices, err := loadDevices(cfg.Devices.File)
	if err != nil {
		return err
	}
	log.Info("device file loaded", "path", cfg.Devices.File, "devices", len(devices))

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("devices"))

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	runtimeOpts := host.Options{
		DB:             db,
		Devices:        registry,
		Factory:        entity.DefaultFactory(),
		Overrides:      overrides,
		Logger:         log.Component("host"),
		Metrics:        collector,
		Publisher:      mqttClient,
		StatePublish:   cfg.Host.StatePublish,
		Broadcaster:    hub,
		WriteQueueSize: cfg.Host.WriteQueueSize,
	}
	if influxClient != nil {
		runtimeOpts.Points = influxClient
	}
	rt, err := host.New(runtimeOpts)
	if err != nil {
		return fmt.Errorf("creating host runtime: %w", err)
	}
	rt.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("closing host runtime")
		if closeErr := rt.Close(closeCtx); closeErr != nil {
			log.Error("error closing host runtime", "error", closeErr)
		}
	}()

	for _, dev := range devices {
		if addErr := rt.AddDevice(ctx, dev); addErr != nil {
			// One bad device must not keep the others offline.
			log.Error("adding device", "device_id", dev.UniqueID, "model", dev.Model, "error", addErr)
			continue
		}
	}
	log.Info("host runtime started",
		"devices", registry.GetDeviceCount(),
		"entities", rt.EntityCount(),
	)

	jobs, err := host.NewJobs(rt, host.JobsConfig{
		RestoreSchedule: cfg.Host.RestoreSchedule,
		PruneSchedule:   cfg.Host.PruneSchedule,
		Retention:       cfg.GetHistoryRetention(),
	})
	if err != nil {
		return fmt.Errorf("scheduling jobs: %w", err)
	}
	jobs.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		jobs.Stop(stopCtx)
	}()
	log.Info("scheduled jobs started", "jobs", jobs.Len())

	br, err := bridge.NewBridge(bridge.BridgeOptions{
		BridgeID:   "miot-" + cfg.Site.ID,
		Version:    version,
		StateTopic: cfg.Devices.StateTopic,
		MQTTClient: mqttClient,
		Devices:    registry,
		Health: bridge.HealthReporterConfig{
			Interval: cfg.GetHealthInterval(),
			Sizes: func() (int, int) {
				return registry.GetDeviceCount(), rt.EntityCount()
			},
		},
		Logger:  log.Component("bridge"),
		Metrics: collector,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Metrics:   cfg.Metrics,
		Logger:    log.Component("api"),
		Runtime:   rt,
		Devices:   registry,
		Collector: collector,
		DB:        db,
		MQTT:      mqttClient,
		Bridge:    br,
		Hub:       hub,
		Version:   version,
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, jobs, host runtime
	// (final flush + restore snapshot), InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDevices reads and builds the declared devices.
func loadDevices(path string) ([]*device.Device, error) {
	file, err := device.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading device file: %w", err)
	}
	devices, err := file.Build()
	if err != nil {
		return nil, fmt.Errorf("building devices: %w", err)
	}
	return devices, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
