package mavlink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// DefaultPollInterval is how often the Publisher checks whether the publish
// interval has elapsed.
const DefaultPollInterval = 25 * time.Millisecond

// Broker is a live MQTT session as seen by the Publisher.
// This is typically implemented by the MQTT client.
type Broker interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the session is usable.
	IsConnected() bool
}

// Snapshotter yields the latest record of every enabled type.
// Implemented by *telemetry.Cache.
type Snapshotter interface {
	SnapshotEnabled() []telemetry.Snapshot
}

// PublisherConfig holds configuration for a Publisher.
type PublisherConfig struct {
	// Cache supplies the enabled records.
	Cache Snapshotter

	// Settings supplies topic, interval and QoS.
	Settings *SettingsStore

	// Activity receives one entry per publish attempt.
	Activity *telemetry.ActivityLog

	// PollInterval is the tick period. Default: DefaultPollInterval.
	PollInterval time.Duration

	// Metrics receives publish counters. Optional.
	Metrics MetricsRecorder

	// OnActivity is called with every appended activity entry. Optional.
	OnActivity func(telemetry.ActivityEntry)

	// Clock overrides time.Now for Run.
	Clock func() time.Time
}

// PublisherStats contains publish counters.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Ticks     uint64 `json:"ticks"`
}

// Publisher periodically publishes the latest record of every enabled type
// to the broker.
//
// Publishing is throttled to the configured interval. Emissions are
// scheduled one interval apart rather than one interval after the tick
// that happened to fire, and a tick within half a poll interval of the
// deadline counts as on time, so poll jitter does not stretch the cadence.
// A publisher more than one interval behind restarts its schedule from the
// current tick instead of bursting to catch up. Without a connected
// broker a tick does nothing. Each record is published independently; one
// failure is logged and recorded but does not stop the others.
type Publisher struct {
	cache        Snapshotter
	settings     *SettingsStore
	activity     *telemetry.ActivityLog
	pollInterval time.Duration
	metrics      MetricsRecorder
	onActivity   func(telemetry.ActivityEntry)
	clock        func() time.Time

	brokerMu sync.RWMutex
	broker   Broker

	tickMu sync.Mutex
	// lastSend is the scheduled time of the previous emission.
	lastSend time.Time

	published atomic.Uint64
	failed    atomic.Uint64
	ticks     atomic.Uint64

	logSink
}

// NewPublisher creates a Publisher with no broker attached.
func NewPublisher(cfg PublisherConfig) *Publisher {
	p := &Publisher{
		cache:        cfg.Cache,
		settings:     cfg.Settings,
		activity:     cfg.Activity,
		pollInterval: cfg.PollInterval,
		metrics:      cfg.Metrics,
		onActivity:   cfg.OnActivity,
		clock:        cfg.Clock,
	}
	if p.settings == nil {
		p.settings = NewSettingsStore(DefaultSettings())
	}
	if p.activity == nil {
		p.activity = telemetry.NewActivityLog(telemetry.DefaultActivityCapacity)
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.metrics == nil {
		p.metrics = noopMetrics{}
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	return p
}

// SetBroker attaches the session used by subsequent ticks. nil detaches.
func (p *Publisher) SetBroker(b Broker) {
	p.brokerMu.Lock()
	p.broker = b
	p.brokerMu.Unlock()
}

func (p *Publisher) currentBroker() Broker {
	p.brokerMu.RLock()
	defer p.brokerMu.RUnlock()
	return p.broker
}

// Run ticks every poll interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(p.clock())
		}
	}
}

// Tick performs one publisher step at time now and returns the number of
// records published successfully.
//
// Nothing happens when no broker is attached, when the broker reports
// disconnected, or when the next scheduled emission is still more than half
// a poll interval away.
func (p *Publisher) Tick(now time.Time) int {
	p.ticks.Add(1)

	b := p.currentBroker()
	if b == nil || !b.IsConnected() {
		return 0
	}

	settings := p.settings.Get()

	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	if !p.due(now, settings.Interval) {
		return 0
	}

	sent := 0
	for _, snap := range p.cache.SnapshotEnabled() {
		if p.publishOne(b, settings, snap, now) {
			sent++
		}
	}
	return sent
}

// due reports whether an emission is due at now and, if so, advances the
// schedule. Must be called with tickMu held.
func (p *Publisher) due(now time.Time, interval time.Duration) bool {
	if p.lastSend.IsZero() {
		p.lastSend = now
		return true
	}

	deadline := p.lastSend.Add(interval)
	if now.Before(deadline.Add(-p.pollInterval / 2)) {
		return false
	}

	if now.Sub(deadline) >= interval {
		p.lastSend = now
	} else {
		p.lastSend = deadline
	}
	return true
}

// publishOne serializes and publishes a single record, recording the
// attempt in the activity log whatever the outcome.
func (p *Publisher) publishOne(b Broker, settings Settings, snap telemetry.Snapshot, now time.Time) bool {
	entry := telemetry.ActivityEntry{
		Timestamp: now,
		Topic:     settings.Topic,
		Type:      snap.Type,
	}

	payload, err := snap.Record.Serialize()
	if err == nil {
		entry.Payload = payload
		start := time.Now()
		err = safePublish(b, settings.Topic, []byte(payload), settings.QoS)
		p.metrics.RecordPublish(snap.Type, time.Since(start), err)
	} else {
		err = fmt.Errorf("serializing %s: %w", snap.Type, err)
		p.metrics.RecordPublish(snap.Type, 0, err)
	}

	if err != nil {
		entry.Error = err.Error()
		p.failed.Add(1)
		p.logWarn("publish failed",
			"type", snap.Type,
			"topic", settings.Topic,
			"error", err,
		)
	} else {
		p.published.Add(1)
		p.logDebug("published", "type", snap.Type, "topic", settings.Topic)
	}

	stored := p.activity.Append(entry)
	if p.onActivity != nil {
		p.onActivity(stored)
	}
	return err == nil
}

// safePublish turns a panicking broker client into an error so one bad
// publish cannot take down the loop.
func safePublish(b Broker, topic string, payload []byte, qos byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish panicked: %v", r)
		}
	}()
	return b.Publish(topic, payload, qos, false)
}

// Stats returns the publish counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Ticks:     p.ticks.Load(),
	}
}

// ResetThrottle makes the next tick emit regardless of the interval.
func (p *Publisher) ResetThrottle() {
	p.tickMu.Lock()
	p.lastSend = time.Time{}
	p.tickMu.Unlock()
}
