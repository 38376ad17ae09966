// SciReCount Core - people-counting ingestion service.
//
// Sensors post line-crossing counts over HTTP or MQTT. Core reconciles each
// reading into the device registry, appends it to the history log and pushes
// the full device snapshot to every connected dashboard.
//
// Usage:
//
//	scirecount                 run the service
//	scirecount hash-password   read a password on stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/techscire/scirecount-core/migrations"

	"github.com/techscire/scirecount-core/internal/api"
	"github.com/techscire/scirecount-core/internal/audit"
	"github.com/techscire/scirecount-core/internal/auth"
	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/client"
	"github.com/techscire/scirecount-core/internal/device"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/database"
	"github.com/techscire/scirecount-core/internal/infrastructure/influxdb"
	"github.com/techscire/scirecount-core/internal/infrastructure/logging"
	"github.com/techscire/scirecount-core/internal/infrastructure/mqtt"
	"github.com/techscire/scirecount-core/internal/ingest"
	"github.com/techscire/scirecount-core/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// metricsObserverID is the broadcast observer that keeps the device gauge current.
const metricsObserverID = "metrics:devices"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred teardown runs in reverse start order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting SciReCount Core",
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

	// Database
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry and history
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	history := device.NewSQLiteHistoryRepository(db.DB)
	clients := client.NewSQLiteRepository(db.DB)

	// Metrics and fan-out
	collector := metrics.New(cfg.Site.ID)
	collector.SetDeviceCount(registry.DeviceCount())

	broadcaster := broadcast.New(registry)
	broadcaster.SetLogger(log.Component("broadcast"))
	broadcaster.SetMetrics(collector)
	stopGauge := trackDeviceCount(ctx, broadcaster, collector)
	defer stopGauge()

	// Ingestion
	engine := ingest.NewEngine(registry, history, ingest.OptionsFromConfig(cfg.Ingest))
	engine.SetPublisher(broadcaster)
	engine.SetMetrics(collector)
	engine.SetLogger(log.Component("ingest"))
	log.Info("ingest engine ready",
		"counter_mode", cfg.Ingest.CounterMode,
		"fallback_device_id", cfg.Ingest.FallbackDeviceID,
	)

	// InfluxDB (optional)
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
			collector.TelemetryError()
			log.Error("InfluxDB write error", "error", err)
		})
		engine.SetTelemetry(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttLog := log.Component("mqtt")
		mqttClient.SetLogger(mqttLog)
		mqttClient.SetOnConnect(func() {
			mqttLog.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			mqttLog.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge := mqtt.NewBridge(mqttClient, engine, byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated to 0-2
		bridge.SetMetrics(collector)
		bridge.SetLogger(mqttLog)
		if startErr := bridge.Start(ctx, broadcaster); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Registry:    registry,
		Engine:      engine,
		Broadcaster: broadcaster,
		History:     history,
		Clients:     clients,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Metrics:     collector,
		DB:          db,
		MQTT:        mqttClient,
		Version:     version,
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the configuration file path.
// Uses SCIRECOUNT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SCIRECOUNT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections. Nil clients are disabled
// integrations and are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// trackDeviceCount keeps the device gauge in step with published snapshots.
// The returned func detaches the observer and waits for it to drain.
func trackDeviceCount(ctx context.Context, b *broadcast.Broadcaster, c *metrics.Collector) func() {
	obs := broadcast.NewChannelObserver(metricsObserverID, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range obs.C() {
			c.SetDeviceCount(len(snapshot.Devices))
		}
	}()
	b.Subscribe(ctx, obs)

	return func() {
		b.Unsubscribe(obs.ID())
		obs.Close()
		<-done
	}
}

// hashPassword reads one line from in and writes its Argon2id PHC hash to
// out, for use as security.dashboard.password_hash.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password is empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
