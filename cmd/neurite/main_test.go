package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
	"github.com/nerrad567/neurite-core/internal/infrastructure/database"
	"github.com/nerrad567/neurite-core/internal/infrastructure/logging"
	"github.com/nerrad567/neurite-core/migrations"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("NEURITE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config error", err)
	}
}

// TestRun_InvalidStatusEncoding verifies validation errors stop startup.
func TestRun_InvalidStatusEncoding(t *testing.T) {
	path := writeTestConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "neurite.db")+`"
status:
  encoding: xml
`)
	t.Setenv("NEURITE_CONFIG", path)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail with an unknown status encoding")
	}
	if !strings.Contains(err.Error(), "status.encoding") {
		t.Errorf("error = %v, want status.encoding in message", err)
	}
}

// TestRun_StartsAndStops runs the full composition with no broker
// reachable and stops it through the context.
func TestRun_StartsAndStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full startup in short mode")
	}

	dir := t.TempDir()
	path := writeTestConfig(t, `
device:
  id: bench-1
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
  reconnect:
    initial_delay: 1
    max_delay: 1
connection:
  tick_interval: 20
database:
  path: "`+filepath.Join(dir, "neurite.db")+`"
logging:
  level: error
  format: text
  output: stdout
`)
	t.Setenv("NEURITE_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "neurite.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("NEURITE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("NEURITE_CONFIG", "/etc/neurite/config.yaml")
	if got := getConfigPath(); got != "/etc/neurite/config.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/neurite/config.yaml", got)
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "neurite.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestResolveIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg := &config.Config{}

	first, err := resolveIdentity(ctx, cfg, db)
	if err != nil {
		t.Fatalf("resolveIdentity() error = %v", err)
	}
	if first.DeviceID == "" {
		t.Fatal("expected a generated device id")
	}
	if first.Boot != 1 {
		t.Errorf("Boot = %d, want 1", first.Boot)
	}
	if first.Version != version {
		t.Errorf("Version = %q, want %q", first.Version, version)
	}

	second, err := resolveIdentity(ctx, cfg, db)
	if err != nil {
		t.Fatalf("resolveIdentity() error = %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("DeviceID changed across boots: %q -> %q", first.DeviceID, second.DeviceID)
	}
	if second.Boot != 2 {
		t.Errorf("Boot = %d, want 2", second.Boot)
	}

	cfg.Device.ID = "bench-1"
	third, err := resolveIdentity(ctx, cfg, db)
	if err != nil {
		t.Fatalf("resolveIdentity() error = %v", err)
	}
	if third.DeviceID != "bench-1" {
		t.Errorf("DeviceID = %q, want configured bench-1", third.DeviceID)
	}
	if third.Boot != 3 {
		t.Errorf("Boot = %d, want 3", third.Boot)
	}
}

func TestResolveBroker_NoLookupNeeded(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", &strings.Builder{})

	tests := []struct {
		name    string
		host    string
		enabled bool
	}{
		{name: "host configured", host: "broker.lan", enabled: true},
		{name: "discovery disabled", host: "", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.MQTT.Broker.Host = tt.host
			cfg.MQTT.Broker.Port = 1883
			cfg.Discovery.Enabled = tt.enabled

			if err := resolveBroker(context.Background(), cfg, log); err != nil {
				t.Fatalf("resolveBroker() error = %v", err)
			}
			if cfg.MQTT.Broker.Host != tt.host || cfg.MQTT.Broker.Port != 1883 {
				t.Errorf("broker changed to %s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
			}
		})
	}
}

func TestOpenInput_Default(t *testing.T) {
	in, err := openInput(&config.Config{})
	if err != nil {
		t.Fatalf("openInput() error = %v", err)
	}
	if in.output != os.Stdout {
		t.Error("default output should be stdout")
	}
	if err := in.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenInput_MissingSerialPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.Serial.Enabled = true
	cfg.Serial.Port = "/dev/neurite-does-not-exist"
	cfg.Serial.BaudRate = 115200

	if _, err := openInput(cfg); err == nil {
		t.Error("openInput() should fail for a missing serial device")
	}
}

func TestLogsToConsole(t *testing.T) {
	tests := []struct {
		name    string
		console bool
		serial  bool
		output  string
		want    bool
	}{
		{name: "console with stdout", console: true, output: "stdout", want: true},
		{name: "console with default output", console: true, output: "", want: true},
		{name: "console output keyword", console: true, output: "console", want: true},
		{name: "console keeps stderr", console: true, output: "stderr", want: false},
		{name: "console keeps log file", console: true, output: "/var/log/neurite.log", want: false},
		{name: "no console", console: false, output: "stdout", want: false},
		{name: "serial input", console: true, serial: true, output: "stdout", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Console.Enabled = tt.console
			cfg.Serial.Enabled = tt.serial
			cfg.Logging.Output = tt.output

			if got := logsToConsole(cfg); got != tt.want {
				t.Errorf("logsToConsole() = %v, want %v", got, tt.want)
			}
		})
	}
}
