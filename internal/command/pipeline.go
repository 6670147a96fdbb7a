package command

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/neurite-core/internal/ringbuf"
)

// Publisher sends a relayed line to the broker.
// mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config sizes the pipeline.
type Config struct {
	RingSize   int
	LineSize   int
	Terminator byte
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Buffered           int    `json:"buffered" cbor:"buffered"`
	Dropped            uint64 `json:"dropped" cbor:"dropped"`
	DroppedBeforeStart uint64 `json:"dropped_before_start" cbor:"dropped_before_start"`
	Truncated          uint64 `json:"truncated" cbor:"truncated"`
	Relayed            uint64 `json:"relayed" cbor:"relayed"`
}

// Pipeline moves bytes from an input source to the broker.
//
// InputByte is the producer side and may be called from any single goroutine
// (UART reader or console). It only enqueues and signals. The consumer
// goroutine started by Start drains the ring through the Parser and publishes
// each non-empty line to the outbound topic at QoS 0 without retain.
type Pipeline struct {
	producer *ringbuf.Producer
	consumer *ringbuf.Consumer
	parser   *Parser

	publisher Publisher
	topic     string

	signal  chan struct{}
	started atomic.Bool

	droppedBeforeStart atomic.Uint64
	relayed            atomic.Uint64
	truncated          atomic.Uint64

	onRelay atomic.Pointer[func(size int)]
	logger  Logger
}

// NewPipeline allocates the ring and parser. Nothing runs until Start.
func NewPipeline(cfg Config, publisher Publisher, topic string) *Pipeline {
	if cfg.RingSize < 1 {
		cfg.RingSize = ringbuf.DefaultCapacity
	}
	if cfg.LineSize < 1 {
		cfg.LineSize = DefaultLineSize
	}

	p := &Pipeline{
		publisher: publisher,
		topic:     topic,
		signal:    make(chan struct{}, 1),
		logger:    noopLogger{},
	}
	p.producer, p.consumer = ringbuf.New(cfg.RingSize)
	p.parser = NewParser(cfg.LineSize, cfg.Terminator, p.relay)
	return p
}

// SetLogger sets the logger. Call before Start.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetOnRelay registers a callback invoked after each line is handed to the publisher.
func (p *Pipeline) SetOnRelay(fn func(size int)) {
	p.onRelay.Store(&fn)
}

// InputByte enqueues one input byte and wakes the consumer.
// Bytes that arrive before Start, or while the ring is full, are dropped and counted.
func (p *Pipeline) InputByte(b byte) {
	if !p.started.Load() {
		p.droppedBeforeStart.Add(1)
		return
	}
	if !p.producer.Put(b) {
		return
	}
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Start launches the consumer goroutine. Later calls are no-ops.
// The goroutine exits when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

// Started reports whether Start has been called.
func (p *Pipeline) Started() bool {
	return p.started.Load()
}

func (p *Pipeline) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.signal:
			p.Drain()
		}
	}
}

// Drain feeds every buffered byte to the parser and returns how many were
// consumed. Only the consumer goroutine may call it.
func (p *Pipeline) Drain() int {
	n := 0
	for {
		b, ok := p.consumer.Get()
		if !ok {
			p.truncated.Store(p.parser.Truncated())
			return n
		}
		p.logger.Debug("input", "char", string(rune(b)))
		p.parser.Feed(b)
		n++
	}
}

// relay publishes a completed line. The parser reuses line after this
// returns, and the publish is asynchronous, so the payload is copied.
func (p *Pipeline) relay(line []byte) {
	if len(line) == 0 {
		return
	}

	payload := make([]byte, len(line))
	copy(payload, line)

	if err := p.publisher.Publish(p.topic, payload, 0, false); err != nil {
		p.logger.Warn("command not relayed", "topic", p.topic, "error", err)
		return
	}
	p.relayed.Add(1)

	if fn := p.onRelay.Load(); fn != nil && *fn != nil {
		(*fn)(len(payload))
	}
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Buffered:           p.consumer.Len(),
		Dropped:            p.consumer.Dropped(),
		DroppedBeforeStart: p.droppedBeforeStart.Load(),
		Truncated:          p.truncated.Load(),
		Relayed:            p.relayed.Load(),
	}
}
