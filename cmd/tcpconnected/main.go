// Command tcpconnected bridges TCP Connected smart bulbs onto the Gray Logic
// MQTT bus and serves a REST and WebSocket API for them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-tcpconnected/migrations"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/api"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/audit"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/auth"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/bridges/tcp"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/device"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/mqtt"
)

// Set at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// bridgeID names this process in health messages and the LWT.
	bridgeID = "tcp-bridge"

	// historyRetention is how long state history rows are kept.
	historyRetention = 30 * 24 * time.Hour
)

func main() {
	configFlag := flag.String("config", "", "config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin and print its hash for security.users")
	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, resolveConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and then shuts
// down in reverse order.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting TCP Connected bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	opener, err := gatewayOpener(cfg.TCPConnected)
	if err != nil {
		return err
	}

	users, err := auth.NewUserStore(usersFromConfig(cfg.Security.Users))
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	if users.Len() == 0 {
		log.Warn("no API users configured; only /health is usable")
	} else {
		log.Info("API users loaded", "users", users.Usernames())
	}

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
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	registry, err := openRegistry(ctx, db, log)
	if err != nil {
		return err
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithLogger(log),
		mqtt.WithWill(lastWill(bridgeID)),
	)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

	var metrics tcp.MetricsWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		metrics = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := tcp.NewBridge(tcp.BridgeOptions{
		BridgeID:     bridgeID,
		Version:      version,
		PollInterval: cfg.GetPollInterval(),
		MQTTClient:   &mqttBridgeAdapter{client: mqttClient},
		Registry:     &registryAdapter{registry: registry},
		Metrics:      metrics,
		Logger:       log.With("component", "tcp-bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	platform := tcp.PlatformConfig{Host: cfg.TCPConnected.Host, AccessToken: cfg.TCPConnected.AccessToken}
	if err := tcp.Setup(ctx, platform, opener, bridge); err != nil {
		return fmt.Errorf("setting up gateway %s: %w", cfg.TCPConnected.Host, err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Lights:   bridge,
		History:  registry,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Users:    users,
		Version:  version,
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

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	status, reason := bridge.Health()
	log.Info("initialisation complete",
		"lights", bridge.LightCount(),
		"bridge_health", status,
		"reason", reason,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openRegistry loads the device registry with SQLite state history and
// prunes history older than historyRetention.
func openRegistry(ctx context.Context, db *database.DB, log *logging.Logger) (*device.Registry, error) {
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "registry"))

	history := device.NewSQLiteStateHistoryRepository(db.DB)
	registry.SetStateHistory(history)

	if err := registry.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}

	pruned, err := history.PruneHistory(ctx, historyRetention)
	if err != nil {
		log.Warn("state history prune failed", "error", err)
	} else if pruned > 0 {
		log.Info("state history pruned", "rows", pruned)
	}

	log.Info("device registry loaded", "devices", registry.GetDeviceCount())
	return registry, nil
}

// resolveConfigPath picks the -config flag, then GRAYLOGIC_CONFIG, then
// the default path.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getConfigPath()
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
