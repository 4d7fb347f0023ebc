package mavlink

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultHealthInterval is how often health is published when unset.
const DefaultHealthInterval = 30 * time.Second

// HealthReporter manages periodic health status reporting.
// It publishes retained health messages to MQTT at regular intervals
// whenever a broker session exists.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	broker    func() Broker
	status    func() Status

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logSink
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Broker returns the current session, or nil when disconnected.
	Broker func() Broker

	// Status returns the bridge status the message is built from.
	Status func() Status
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		broker:    cfg.Broker,
		status:    cfg.Status,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops health reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// PublishNow publishes the current health status immediately.
// Called after a broker session is established so subscribers see the
// bridge without waiting a full interval.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.status == nil {
		return HealthHealthy, ""
	}
	st := h.status()
	if st.Listener.State != StateListening {
		if st.Listener.LastError != "" {
			return HealthDegraded, "listener stopped: " + st.Listener.LastError
		}
		return HealthDegraded, "listener idle"
	}
	return HealthHealthy, ""
}

// publishStatus publishes a health status message. Without a connected
// broker it does nothing.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.broker == nil {
		return nil
	}
	b := h.broker()
	if b == nil || !b.IsConnected() {
		return nil
	}

	var st Status
	if h.status != nil {
		st = h.status()
	}

	msg := NewHealthMessage(h.version, status, st, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained
	return b.Publish(HealthTopic(), payload, 1, true)
}
