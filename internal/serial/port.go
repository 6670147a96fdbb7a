package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

const (
	// readTimeout bounds each Read so Pump notices cancellation.
	readTimeout = 200 * time.Millisecond

	readBufferSize = 64
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("serial: port closed")

// Sink receives input bytes one at a time.
// command.Pipeline and node.Node satisfy it.
type Sink interface {
	InputByte(b byte)
}

// Port is a UART used as both the command input source and the output sink
// for inbound broker messages.
type Port struct {
	name string
	rwc  io.ReadWriteCloser

	writeMu sync.Mutex
	closed  bool
}

// Open opens the configured device at 8N1.
func Open(cfg config.SerialConfig) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}

	return newPort(cfg.Port, p), nil
}

func newPort(name string, rwc io.ReadWriteCloser) *Port {
	return &Port{name: name, rwc: rwc}
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Pump reads until ctx is done or the port fails, forwarding every byte to
// sink in arrival order. A read timeout is not an error.
func (p *Port) Pump(ctx context.Context, sink Sink) error {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := p.rwc.Read(buf)
		for i := 0; i < n; i++ {
			sink.InputByte(buf[i])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", p.name, err)
		}
	}
}

// Write sends b to the UART. Safe for concurrent use.
func (p *Port) Write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	return p.rwc.Write(b)
}

// Close closes the device. Pump returns once its pending Read fails.
func (p *Port) Close() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.rwc.Close()
}

// Ports lists serial devices present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}
