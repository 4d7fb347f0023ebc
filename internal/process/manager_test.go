package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "test-proc",
		Binary: "/usr/bin/test",
		Args:   []string{"--flag"},
	})

	if m.config.Name != "test-proc" {
		t.Errorf("Name = %q, want %q", m.config.Name, "test-proc")
	}
	if m.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, defaultGracefulTimeout)
	}
}

func TestBrokerConfig(t *testing.T) {
	cfg := BrokerConfig(config.LocalBrokerConfig{
		Binary:          "mosquitto",
		Port:            1884,
		GracefulTimeout: 3,
	})

	if cfg.Name != "mosquitto" || cfg.Binary != "mosquitto" {
		t.Errorf("Name/Binary = %q/%q, want mosquitto/mosquitto", cfg.Name, cfg.Binary)
	}
	if len(cfg.Args) != 2 || cfg.Args[0] != "-p" || cfg.Args[1] != "1884" {
		t.Errorf("Args = %v, want [-p 1884]", cfg.Args)
	}
	if cfg.GracefulTimeout != 3*time.Second {
		t.Errorf("GracefulTimeout = %v, want 3s", cfg.GracefulTimeout)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}

	stats := m.Stats()
	if stats.Name != "test" || stats.Status != StatusStopped || stats.PID != 0 || stats.LastError != "" {
		t.Errorf("Stats() = %+v, want stopped with no pid or error", stats)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	// Stopping a non-running process should be a no-op
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped process error = %v, want nil", err)
	}
}

func TestManager_StartAlreadyRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/sleep",
		Args:   []string{"10"},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer m.Stop()

	err := m.Start(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var (
		mu      sync.Mutex
		stopErr = errors.New("unset")
	)
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnStop: func(err error) {
			mu.Lock()
			stopErr = err
			mu.Unlock()
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.Stats().PID == 0 {
		t.Error("Stats().PID = 0 after Start()")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q after Stop(), want %q", m.Status(), StatusStopped)
	}

	mu.Lock()
	defer mu.Unlock()
	if stopErr != nil {
		t.Errorf("OnStop error = %v, want nil for requested stop", stopErr)
	}
}

func TestManager_UnexpectedExit(t *testing.T) {
	exited := make(chan error, 1)
	m := NewManager(Config{
		Name:   "short-lived",
		Binary: "/bin/true",
		OnStop: func(err error) { exited <- err },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case err := <-exited:
		if err == nil {
			t.Error("OnStop error = nil, want unexpected exit error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after unexpected exit")
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "bad-binary",
		Binary: "/nonexistent/binary",
	})

	err := m.Start(context.Background())
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("Start() error = %v, want ErrBinaryNotFound", err)
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}

	// A failed start leaves the manager ready for another attempt.
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestManager_StartCancelledContext(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/sleep",
		Args:   []string{"10"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_Toggle(t *testing.T) {
	m := NewManager(Config{
		Name:            "toggle",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	status, err := m.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle() start error: %v", err)
	}
	if status != StatusRunning {
		t.Errorf("Toggle() = %q, want %q", status, StatusRunning)
	}

	status, err = m.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle() stop error: %v", err)
	}
	if status != StatusStopped {
		t.Errorf("Toggle() = %q, want %q", status, StatusStopped)
	}
}

func TestManager_SetLogger(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/true",
	})

	// Should not panic
	m.SetLogger(noopLogger{})
	m.SetLogger(nil)
	m.log().Info("still silent")
}
