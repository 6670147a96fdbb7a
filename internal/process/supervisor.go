package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

// State is the lifecycle state of a supervised process.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	// StateGaveUp means the restart budget is exhausted. Terminal until Start is called again.
	StateGaveUp State = "gave_up"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultGracefulTimeout = 10 * time.Second
)

// Config describes one supervised binary.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// RestartDelay is the pause between an unexpected exit and the next start.
	RestartDelay time.Duration

	// MaxRestartAttempts caps consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// SupplicantConfig builds the Config for a wpa_supplicant bound to iface.
func SupplicantConfig(cfg config.SupplicantConfig, iface string) Config {
	return Config{
		Name:               "wpa_supplicant",
		Binary:             cfg.Binary,
		Args:               []string{"-i", iface, "-c", cfg.ConfigFile},
		RestartDelay:       time.Duration(cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
	}
}

// Logger defines the logging interface for the supervisor.
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

// Supervisor keeps one child process running, restarting it on unexpected
// exit until the restart budget runs out.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	state         State
	restarts      int
	lastErr       error
	stopRequested bool
	onState       func(State)

	done chan struct{}
}

// NewSupervisor returns a stopped supervisor.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateStopped,
	}
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// OnStateChange registers a callback invoked on every state change.
// It runs on the supervisor goroutine and must not block.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Start launches the process and the monitor goroutine.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateRetrying {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.stopRequested = false
	s.restarts = 0
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.spawn(ctx); err != nil {
		s.setState(StateStopped, err)
		return err
	}

	go s.monitor(ctx)
	return nil
}

func (s *Supervisor) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	s.setState(StateRunning, nil)

	go s.captureOutput("stdout", stdout)
	go s.captureOutput("stderr", stderr)

	s.logger.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return nil
}

// captureOutput logs the child's output line by line at debug level.
func (s *Supervisor) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("process output",
			"name", s.cfg.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
}

func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()

		err := cmd.Wait()

		if s.stopping() || ctx.Err() != nil {
			s.setState(StateStopped, nil)
			return
		}

		s.logger.Warn("process exited unexpectedly", "name", s.cfg.Name, "error", err)

		s.mu.Lock()
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()

		if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
			s.logger.Error("max restart attempts reached", "name", s.cfg.Name, "attempts", attempt-1)
			s.setState(StateGaveUp, err)
			return
		}

		s.setState(StateRetrying, err)

		// Keep retrying spawn until it succeeds or the budget is spent.
		for {
			select {
			case <-ctx.Done():
				s.setState(StateStopped, nil)
				return
			case <-time.After(s.cfg.RestartDelay):
			}
			if s.stopping() {
				s.setState(StateStopped, nil)
				return
			}

			spawnErr := s.spawn(ctx)
			if spawnErr == nil {
				break
			}
			s.logger.Error("failed to restart process", "name", s.cfg.Name, "error", spawnErr)

			s.mu.Lock()
			s.restarts++
			attempt = s.restarts
			s.lastErr = spawnErr
			s.mu.Unlock()
			if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
				s.setState(StateGaveUp, spawnErr)
				return
			}
		}
	}
}

func (s *Supervisor) stopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopRequested
}

func (s *Supervisor) setState(state State, err error) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	if err != nil {
		s.lastErr = err
	}
	callback := s.onState
	s.mu.Unlock()

	if changed && callback != nil {
		callback(state)
	}
}

// Stop sends SIGTERM to the process group, waits GracefulTimeout, then SIGKILL.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.stopRequested = true
	cmd := s.cmd
	done := s.done
	running := s.state == StateRunning || s.state == StateRetrying
	s.mu.Unlock()

	if !running || done == nil || cmd == nil || cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", s.cfg.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-done
	return nil
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	PID       int    `json:"pid,omitempty"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.cfg.Name, State: s.state, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil && s.state == StateRunning {
		st.PID = s.cmd.Process.Pid
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
