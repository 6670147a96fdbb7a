// Neurite Core - connectivity agent for a serial-attached device
//
// Neurite brings up the network, reaches an MQTT broker and then relays
// terminated command lines from a UART (or an interactive console) to the
// broker, writing anything the broker sends back to the same output.
//
// Startup order: config, logging, database and identity, telemetry, broker
// discovery, broker session, network station, node, input source.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nerrad567/neurite-core/internal/console"
	"github.com/nerrad567/neurite-core/internal/discovery"
	"github.com/nerrad567/neurite-core/internal/identity"
	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
	"github.com/nerrad567/neurite-core/internal/infrastructure/database"
	"github.com/nerrad567/neurite-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/neurite-core/internal/infrastructure/logging"
	"github.com/nerrad567/neurite-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/neurite-core/internal/node"
	"github.com/nerrad567/neurite-core/internal/serial"
	"github.com/nerrad567/neurite-core/internal/wifi"
	"github.com/nerrad567/neurite-core/migrations"
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
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// The console can end the session itself (EOF or ^C on an empty line).
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	log := logging.Default()
	log.Info("starting Neurite Core",
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

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // Nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
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

	// Resolve device identity
	id, err := resolveIdentity(ctx, cfg, db)
	if err != nil {
		return err
	}
	log = log.WithDevice(id.DeviceID)
	log.Info("device identity resolved",
		"device_id", id.DeviceID,
		"boot", id.Boot,
	)

	// Connect to InfluxDB (optional)
	var telemetry node.Telemetry
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, id.DeviceID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Locate the broker if none is configured
	if err := resolveBroker(ctx, cfg, log); err != nil {
		return err
	}

	// Broker session; the node connects it once the network is up
	mqttClient := mqtt.New(cfg.MQTT, id.DeviceID)
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT session configured",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	station := wifi.NewHostStation(ctx, cfg.WiFi)
	station.SetLogger(log)
	defer func() {
		if closeErr := station.Close(); closeErr != nil {
			log.Error("error stopping network station", "error", closeErr)
		}
	}()

	// Open the input source before the node so it can be the output sink
	src, err := openInput(cfg)
	if err != nil {
		return err
	}
	if logsToConsole(cfg) {
		log.SetOutput(src.output)
	}
	defer func() {
		if logsToConsole(cfg) {
			log.SetOutput(os.Stderr)
		}
		if closeErr := src.Close(); closeErr != nil {
			log.Error("error closing input", "error", closeErr)
		}
	}()

	n, err := node.New(cfg, id, node.Dependencies{
		Session:   mqttClient,
		Topics:    mqttClient.Topics(),
		Station:   station,
		Output:    src.output,
		Telemetry: telemetry,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	src.start(ctx, n, stop, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("running node: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// input, station, MQTT, InfluxDB (if enabled), database

	log.Info("Neurite Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NEURITE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEURITE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// resolveIdentity returns the device identity and records this boot.
// A configured device.id takes precedence over the persisted one.
func resolveIdentity(ctx context.Context, cfg *config.Config, db *database.DB) (node.Identity, error) {
	store := identity.NewStore(db)

	uid, err := store.LoadOrCreate(ctx)
	if err != nil {
		return node.Identity{}, fmt.Errorf("loading device identity: %w", err)
	}
	if cfg.Device.ID != "" {
		uid = cfg.Device.ID
	}

	boot, err := store.RecordBoot(ctx)
	if err != nil {
		return node.Identity{}, fmt.Errorf("recording boot: %w", err)
	}

	return node.Identity{DeviceID: uid, Version: version, Boot: boot}, nil
}

// resolveBroker fills in the broker address via mDNS when no host is configured.
func resolveBroker(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if cfg.MQTT.Broker.Host != "" || !cfg.Discovery.Enabled {
		return nil
	}

	log.Info("discovering MQTT broker",
		"service", cfg.Discovery.Service,
		"domain", cfg.Discovery.Domain,
	)
	broker, err := discovery.Resolve(ctx, cfg.Discovery)
	if err != nil {
		return fmt.Errorf("discovering MQTT broker: %w", err)
	}

	cfg.MQTT.Broker.Host = broker.Host
	cfg.MQTT.Broker.Port = broker.Port
	log.Info("MQTT broker discovered",
		"instance", broker.Instance,
		"address", broker.Address(),
	)
	return nil
}

// logsToConsole reports whether log lines should go through the interactive
// console's writer. A log file or stderr is left alone.
func logsToConsole(cfg *config.Config) bool {
	if !cfg.Console.Enabled || cfg.Serial.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Logging.Output) {
	case "", logging.OutputStdout, logging.OutputConsole:
		return true
	default:
		return false
	}
}

// input is the configured byte source and the matching output sink.
type input struct {
	output io.Writer
	start  func(ctx context.Context, n *node.Node, stop context.CancelFunc, log *logging.Logger)
	close  func() error
}

// Close releases the input device.
func (in input) Close() error {
	if in.close == nil {
		return nil
	}
	return in.close()
}

// openInput opens the serial port or console. With neither enabled, inbound
// messages go to stdout and there is no command input.
func openInput(cfg *config.Config) (input, error) {
	switch {
	case cfg.Serial.Enabled:
		port, err := serial.Open(cfg.Serial)
		if err != nil {
			return input{}, fmt.Errorf("opening serial input: %w", err)
		}
		return input{
			output: port,
			close:  port.Close,
			start: func(ctx context.Context, n *node.Node, stop context.CancelFunc, log *logging.Logger) {
				log.Info("serial input started", "port", port.Name(), "baud", cfg.Serial.BaudRate)
				go func() {
					if err := port.Pump(ctx, n); err != nil {
						log.Error("serial input failed", "port", port.Name(), "error", err)
						stop()
					}
				}()
			},
		}, nil

	case cfg.Console.Enabled:
		con, err := console.New(cfg.Console, cfg.Terminator())
		if err != nil {
			return input{}, fmt.Errorf("opening console input: %w", err)
		}
		return input{
			output: con.Stdout(),
			close:  con.Close,
			start: func(ctx context.Context, n *node.Node, stop context.CancelFunc, log *logging.Logger) {
				log.Info("console input started")
				go con.Run(ctx, n, stop)
			},
		}, nil

	default:
		return input{
			output: os.Stdout,
			start: func(_ context.Context, _ *node.Node, _ context.CancelFunc, log *logging.Logger) {
				log.Info("no command input configured")
			},
		}, nil
	}
}

// healthCheck verifies the infrastructure that must be up before the node
// starts. The broker session is established later by the node itself.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
