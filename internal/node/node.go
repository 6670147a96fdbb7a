package node

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/neurite-core/internal/command"
	"github.com/nerrad567/neurite-core/internal/connection"
	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
	"github.com/nerrad567/neurite-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/neurite-core/internal/status"
	"github.com/nerrad567/neurite-core/internal/wifi"
)

// checkinPrefix starts the announcement published on entering steady state.
const checkinPrefix = "checkin: "

// lineEnding follows every inbound message written to the output sink.
const lineEnding = "\r\n"

// Session is the broker session the node drives. mqtt.Client satisfies it.
type Session interface {
	Connect() error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	SetOnPublished(callback func(topic string))
}

// Telemetry records device events. influxdb.Client satisfies it.
type Telemetry interface {
	RecordTransition(from, to string)
	RecordCommand(size int)
	RecordInbound(topic string, size int)
}

// Logger is the logging interface used by the node and its components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopTelemetry struct{}

func (noopTelemetry) RecordTransition(string, string) {}
func (noopTelemetry) RecordCommand(int)               {}
func (noopTelemetry) RecordInbound(string, int)       {}

// Identity describes this run of the device.
type Identity struct {
	DeviceID string
	Version  string
	Boot     int
}

// Dependencies are the collaborators the node borrows.
// Telemetry and Logger are optional.
type Dependencies struct {
	Session   Session
	Topics    mqtt.Topics
	Station   wifi.Station
	Output    io.Writer
	Telemetry Telemetry
	Logger    Logger
}

// Node is the device context. It owns the connection machine, the command
// pipeline and the status reporter, and implements connection.Actions.
type Node struct {
	cfg      *config.Config
	identity Identity
	session  Session
	topics   mqtt.Topics
	station  wifi.Station

	machine  *connection.Machine
	pipeline *command.Pipeline
	reporter *status.Reporter

	out   io.Writer
	outMu sync.Mutex

	telemetry Telemetry
	logger    Logger
	started   time.Time

	// runCtx is set by Run before the machine starts; actions run on the
	// machine's goroutine and read it there.
	runCtx context.Context
}

// New wires a node. Nothing runs until Run.
func New(cfg *config.Config, id Identity, deps Dependencies) (*Node, error) {
	if deps.Session == nil || deps.Station == nil || deps.Output == nil {
		return nil, ErrMissingDependency
	}

	n := &Node{
		cfg:       cfg,
		identity:  id,
		session:   deps.Session,
		topics:    deps.Topics,
		station:   deps.Station,
		out:       deps.Output,
		telemetry: deps.Telemetry,
		logger:    deps.Logger,
		started:   time.Now(),
		runCtx:    context.Background(),
	}
	if n.telemetry == nil {
		n.telemetry = noopTelemetry{}
	}
	if n.logger == nil {
		n.logger = noopLogger{}
	}

	n.pipeline = command.NewPipeline(command.Config{
		RingSize:   cfg.Command.RingSize,
		LineSize:   cfg.Command.LineSize,
		Terminator: cfg.Terminator(),
	}, n.session, n.topics.To)
	n.pipeline.SetLogger(n.logger)
	n.pipeline.SetOnRelay(n.telemetry.RecordCommand)

	reporter, err := status.NewReporter(status.Config{
		Topic:     n.topics.Status,
		Interval:  cfg.GetStatusInterval(),
		Encoding:  cfg.Status.Encoding,
		Collect:   n.report,
		Publisher: n.session,
	}, n.started)
	if err != nil {
		return nil, fmt.Errorf("creating status reporter: %w", err)
	}
	reporter.SetLogger(n.logger)
	n.reporter = reporter

	n.machine = connection.NewMachine(n,
		connection.Policy{ResumeOnLoss: cfg.Connection.ResumeOnLoss},
		cfg.GetTickInterval(),
	)
	n.machine.SetLogger(n.logger)
	n.machine.SetOnTransition(func(from, to connection.State) {
		n.telemetry.RecordTransition(from.String(), to.String())
	})

	n.session.SetOnConnect(func() {
		n.logger.Info("broker connected")
		n.machine.Post(connection.BrokerConnected{})
	})
	n.session.SetOnDisconnect(func(err error) {
		n.logger.Warn("broker connection lost", "error", err)
		n.machine.Post(connection.BrokerDisconnected{Err: err})
	})
	n.session.SetOnPublished(func(topic string) {
		n.logger.Debug("published", "topic", topic)
	})

	return n, nil
}

// Run drives the connection machine until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	n.runCtx = ctx
	n.logger.Info("node starting",
		"device_id", n.identity.DeviceID,
		"boot", n.identity.Boot,
		"resume_on_loss", n.cfg.Connection.ResumeOnLoss,
	)
	return n.machine.Run(ctx)
}

// InputByte accepts one byte from the input source.
func (n *Node) InputByte(b byte) {
	n.pipeline.InputByte(b)
}

// ConnectNetwork asks the station to associate.
func (n *Node) ConnectNetwork() {
	n.station.Connect(n.cfg.WiFi.SSID, n.cfg.WiFi.Password, func(s wifi.Status) {
		n.logger.Info("wifi status", "status", s.String())
		n.machine.Post(connection.NetworkStatus{Status: s})
	})
}

// ConnectBroker starts the broker session.
func (n *Node) ConnectBroker() {
	if err := n.session.Connect(); err != nil {
		n.logger.Error("broker connect failed", "error", err)
	}
}

// EnterSteady starts command relaying, subscribes to the inbound topic and
// announces the device.
func (n *Node) EnterSteady() {
	n.pipeline.Start(n.runCtx)

	if err := n.session.Subscribe(n.topics.From, 0, n.onMessage); err != nil {
		n.logger.Error("subscribe failed", "topic", n.topics.From, "error", err)
	}

	checkin := []byte(checkinPrefix + n.identity.DeviceID)
	if err := n.session.Publish(n.topics.To, checkin, 0, false); err != nil {
		n.logger.Error("checkin failed", "topic", n.topics.To, "error", err)
	}
}

// SteadyTick runs the periodic steady-state work.
func (n *Node) SteadyTick(now time.Time) {
	n.reporter.Tick(now)
}

// onMessage writes an inbound payload to the output sink before returning.
// payload is not retained.
func (n *Node) onMessage(topic string, payload []byte) error {
	n.outMu.Lock()
	_, err := n.out.Write(payload)
	if err == nil {
		_, err = io.WriteString(n.out, lineEnding)
	}
	n.outMu.Unlock()

	n.telemetry.RecordInbound(topic, len(payload))
	if err != nil {
		return fmt.Errorf("writing inbound message: %w", err)
	}
	return nil
}

func (n *Node) report() status.Report {
	stats := n.pipeline.Stats()
	return status.Report{
		DeviceID:           n.identity.DeviceID,
		Version:            n.identity.Version,
		State:              n.machine.State().String(),
		Boot:               n.identity.Boot,
		Relayed:            stats.Relayed,
		Dropped:            stats.Dropped,
		DroppedBeforeStart: stats.DroppedBeforeStart,
		Truncated:          stats.Truncated,
	}
}

// State returns the connection state.
func (n *Node) State() connection.State {
	return n.machine.State()
}

// Stats returns the command pipeline counters.
func (n *Node) Stats() command.Stats {
	return n.pipeline.Stats()
}
