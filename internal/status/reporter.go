package status

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownEncoding is returned for an unsupported status.encoding.
var ErrUnknownEncoding = errors.New("status: unknown encoding")

// Report is one status message.
type Report struct {
	DeviceID           string `json:"device_id" cbor:"device_id"`
	Version            string `json:"version" cbor:"version"`
	State              string `json:"state" cbor:"state"`
	Boot               int    `json:"boot" cbor:"boot"`
	UptimeSeconds      int64  `json:"uptime_s" cbor:"uptime_s"`
	Relayed            uint64 `json:"relayed" cbor:"relayed"`
	Dropped            uint64 `json:"dropped" cbor:"dropped"`
	DroppedBeforeStart uint64 `json:"dropped_before_start" cbor:"dropped_before_start"`
	Truncated          uint64 `json:"truncated" cbor:"truncated"`
	Timestamp          int64  `json:"ts" cbor:"ts"`
}

// Publisher sends status payloads. mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Config configures a Reporter.
type Config struct {
	Topic    string
	Interval time.Duration
	Encoding string

	// Collect fills in the live fields of a report. Timestamp and uptime are
	// set by the reporter.
	Collect func() Report

	Publisher Publisher
}

// Reporter publishes a status report from the steady-state tick at most
// once per interval. It has no goroutine of its own.
type Reporter struct {
	cfg     Config
	encode  Encoder
	started time.Time

	mu   sync.Mutex
	last time.Time
	sent uint64

	logger Logger
}

// NewReporter validates the encoding and returns a reporter.
// An Interval of zero disables reporting.
func NewReporter(cfg Config, started time.Time) (*Reporter, error) {
	encode, err := EncoderFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		cfg:     cfg,
		encode:  encode,
		started: started,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (r *Reporter) SetLogger(logger Logger) {
	r.logger = logger
}

// Enabled reports whether the reporter will ever publish.
func (r *Reporter) Enabled() bool {
	return r.cfg.Interval > 0 && r.cfg.Topic != "" && r.cfg.Publisher != nil
}

// Tick publishes a report if the interval has elapsed since the last one.
// The first tick always publishes. It returns true when a report was sent.
func (r *Reporter) Tick(now time.Time) bool {
	if !r.Enabled() {
		return false
	}

	r.mu.Lock()
	due := r.last.IsZero() || now.Sub(r.last) >= r.cfg.Interval
	if due {
		r.last = now
	}
	r.mu.Unlock()
	if !due {
		return false
	}

	if err := r.publish(now); err != nil {
		r.logger.Warn("status report not published", "topic", r.cfg.Topic, "error", err)
		return false
	}

	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
	return true
}

func (r *Reporter) publish(now time.Time) error {
	var report Report
	if r.cfg.Collect != nil {
		report = r.cfg.Collect()
	}
	report.UptimeSeconds = int64(now.Sub(r.started) / time.Second)
	report.Timestamp = now.Unix()

	payload, err := r.encode(report)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return r.cfg.Publisher.Publish(r.cfg.Topic, payload, 0, false)
}

// Sent returns how many reports were published.
func (r *Reporter) Sent() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}
