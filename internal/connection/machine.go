package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// eventQueueSize bounds events waiting for the dispatcher.
const eventQueueSize = 32

// Actions performs the side effects the machine requests. Each method is
// called on the dispatcher goroutine and must return promptly; connection
// work is started, not awaited.
type Actions interface {
	ConnectNetwork()
	ConnectBroker()
	EnterSteady()
	SteadyTick(now time.Time)
}

// Logger is the logging interface used by the machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	State State
	Flags Flags
	Ticks uint64
}

// Machine drives the connection lifecycle.
//
// Run owns a ticker and the event queue and is the only goroutine that
// advances the state, so ticks and events never interleave. Other goroutines
// report readiness with Post and read state with Snapshot.
type Machine struct {
	actions  Actions
	policy   Policy
	interval time.Duration

	mu    sync.RWMutex
	state State
	flags Flags
	ticks uint64

	// queueMu makes taking an event off the queue and applying it one step,
	// so overflow handling in Post cannot reorder events.
	queueMu sync.Mutex
	events  chan Event
	wake    chan struct{}
	running atomic.Bool

	onTransition atomic.Pointer[func(from, to State)]
	logger       Logger
}

// NewMachine returns a machine in StateIdle.
func NewMachine(actions Actions, policy Policy, interval time.Duration) *Machine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Machine{
		actions:  actions,
		policy:   policy,
		interval: interval,
		state:    StateIdle,
		events:   make(chan Event, eventQueueSize),
		wake:     make(chan struct{}, 1),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// SetOnTransition registers a callback for state changes.
// It runs on the dispatcher goroutine after the change is visible.
func (m *Machine) SetOnTransition(fn func(from, to State)) {
	m.onTransition.Store(&fn)
}

// Post queues an event for the dispatcher without waiting for it. If the
// queue is full the oldest queued event is applied first to make room, so
// events always take effect in the order they were posted.
func (m *Machine) Post(ev Event) {
	m.queueMu.Lock()
	for {
		select {
		case m.events <- ev:
			m.queueMu.Unlock()
			m.notify()
			return
		default:
		}

		select {
		case oldest := <-m.events:
			m.logger.Error("connection event queue full, applying oldest event early",
				"event", describe(oldest))
			m.HandleEvent(oldest)
		default:
		}
	}
}

func (m *Machine) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// drain applies every queued event in order.
func (m *Machine) drain() {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	for {
		select {
		case ev := <-m.events:
			m.HandleEvent(ev)
		default:
			return
		}
	}
}

// HandleEvent folds ev into the flags.
func (m *Machine) HandleEvent(ev Event) {
	m.mu.Lock()
	before := m.flags
	m.flags = Apply(m.flags, ev)
	after := m.flags
	m.mu.Unlock()

	if before != after {
		m.logger.Debug("connection flags changed",
			"event", describe(ev),
			"network", after.Network,
			"broker", after.Broker,
		)
	}
}

// Tick advances the machine one step and performs the resulting action.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	from := m.state
	next, action, err := Next(from, m.flags, m.policy)
	m.ticks++
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("connection state machine stalled", "state", from.String(), "error", err)
		return
	}
	m.state = next
	m.mu.Unlock()

	if next != from {
		m.logger.Info("connection state changed", "from", from.String(), "to", next.String())
		if fn := m.onTransition.Load(); fn != nil && *fn != nil {
			(*fn)(from, next)
		}
	}

	switch action {
	case ActionConnectNetwork:
		m.actions.ConnectNetwork()
	case ActionConnectBroker:
		m.actions.ConnectBroker()
	case ActionEnterSteady:
		m.actions.EnterSteady()
	case ActionSteadyTick:
		m.actions.SteadyTick(now)
	}
}

// Run arms the ticker and dispatches ticks and events until ctx is done.
// Only one Run may be active at a time.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
			m.drain()
		case now := <-ticker.C:
			m.drain()
			m.Tick(now)
		}
	}
}

// Snapshot returns the current state, flags and tick count.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Flags: m.flags, Ticks: m.ticks}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.Snapshot().State
}

func describe(ev Event) string {
	switch e := ev.(type) {
	case NetworkStatus:
		return "network:" + e.Status.String()
	case BrokerConnected:
		return "broker_connected"
	case BrokerDisconnected:
		return "broker_disconnected"
	default:
		return "unknown"
	}
}
