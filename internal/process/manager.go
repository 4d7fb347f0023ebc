package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// defaultGracefulTimeout is used when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 5 * time.Second

// Sentinel errors.
var (
	// ErrAlreadyRunning is returned by Start while the process is running.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrBinaryNotFound is returned when the executable cannot be resolved.
	ErrBinaryNotFound = errors.New("binary not found")
)

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable name or path.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStop is called when the process exits, with the exit error for an
	// unexpected exit and nil for a requested stop.
	OnStop func(err error)
}

// BrokerConfig builds the subprocess configuration for a local mosquitto
// broker listening on cfg.Port.
func BrokerConfig(cfg config.LocalBrokerConfig) Config {
	return Config{
		Name:            "mosquitto",
		Binary:          cfg.Binary,
		Args:            []string{"-p", strconv.Itoa(cfg.Port)},
		GracefulTimeout: time.Duration(cfg.GracefulTimeout) * time.Second,
	}
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of a subprocess.
//
// A process that exits on its own is reported as failed and is not
// restarted; the operator starts it again.
type Manager struct {
	config Config

	loggerMu sync.RWMutex
	logger   Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Manager) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// Start launches the subprocess and begins watching for its exit.
//
// The process is not bound to ctx; it runs until Stop is called or it exits
// on its own.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.lastError = nil
	m.done = make(chan struct{})
	m.mu.Unlock()

	cmd, err := m.startProcess()
	if err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(cmd)

	return nil
}

// startProcess actually starts the subprocess.
func (m *Manager) startProcess() (*exec.Cmd, error) {
	path, err := exec.LookPath(m.config.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, m.config.Binary, err)
	}

	m.log().Info("starting process",
		"name", m.config.Name,
		"binary", path,
		"args", m.config.Args,
	)

	cmd := exec.Command(path, m.config.Args...) //nolint:gosec // Binary comes from operator configuration

	// Create a new process group so we can signal all children on shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.log().Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	return cmd, nil
}

// captureOutput reads from the given reader and logs each chunk.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.log().Debug("process output",
				"name", m.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			return
		}
	}
}

// monitor waits for the process to exit and records the outcome.
func (m *Manager) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()

	m.mu.Lock()
	stopRequested := m.stopRequested
	if stopRequested {
		m.status = StatusStopped
	} else {
		if err == nil {
			err = fmt.Errorf("%s exited", m.config.Name)
		}
		m.status = StatusFailed
		m.lastError = err
	}
	done := m.done
	m.mu.Unlock()

	if stopRequested {
		m.log().Info("process stopped as requested", "name", m.config.Name)
		err = nil
	} else {
		m.log().Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
	}

	if m.config.OnStop != nil {
		m.config.OnStop(err)
	}
	close(done)
}

// Stop gracefully stops the subprocess.
// It sends SIGTERM and waits for graceful shutdown, then SIGKILL if needed.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.log().Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the process group created via Setpgid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.log().Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}
	}

	timer := time.NewTimer(m.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.log().Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	m.log().Info("process killed", "name", m.config.Name)

	return nil
}

// Toggle stops a running process or starts a stopped one, and returns the
// resulting status.
func (m *Manager) Toggle(ctx context.Context) (Status, error) {
	if m.IsRunning() {
		if err := m.Stop(); err != nil {
			return m.Status(), err
		}
		return m.Status(), nil
	}
	if err := m.Start(ctx); err != nil {
		return m.Status(), err
	}
	return m.Status(), nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Stats describes the managed process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Args      []string      `json:"args"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:   m.config.Name,
		Status: m.status,
		Args:   m.config.Args,
	}

	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
		stats.Uptime = time.Since(m.startTime)
	}

	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}
