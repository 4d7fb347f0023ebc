package mavlink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// Defaults for the receive endpoint.
const (
	DefaultListenAddress = "0.0.0.0"
	DefaultListenPort    = 14550
)

// Event channels emitted to the EventSink.
const (
	EventActivityAppended = "activity.appended"
	EventListenerState    = "listener.state"
	EventBrokerState      = "broker.state"
)

// BrokerConn is a broker session owned by the Bridge.
type BrokerConn interface {
	Broker

	// Close ends the session. Safe to call more than once.
	Close() error
}

// BrokerDialer establishes a broker session to host:port.
type BrokerDialer func(host string, port int) (BrokerConn, error)

// EventSink receives operator-facing events. Implemented by the API
// WebSocket hub.
type EventSink interface {
	Broadcast(channel string, payload any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// ListenAddress and ListenPort are the default receive endpoint used by
	// ToggleListening.
	ListenAddress string
	ListenPort    int

	// ReceiveTimeout bounds each receive. Default: DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// Settings are the initial publish settings. Zero value: DefaultSettings.
	Settings Settings

	// PollInterval is the publisher tick period. Default: DefaultPollInterval.
	PollInterval time.Duration

	// ActivityLogSize bounds the activity log. Default: 20.
	ActivityLogSize int

	// AutoEnable lists message types that start enabled when first seen.
	AutoEnable []string

	// Open creates receive sources. Default: OpenUDPSource.
	Open SourceOpener

	// Dial creates broker sessions. Required.
	Dial BrokerDialer

	// Metrics receives counters and gauges. Optional.
	Metrics MetricsRecorder

	// HealthInterval enables health publishing when > 0.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string

	// Logger is optional structured logger.
	Logger Logger
}

// BrokerStatus describes the broker session.
type BrokerStatus struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// SettingsView is the JSON form of Settings.
type SettingsView struct {
	Topic      string `json:"topic"`
	IntervalMS int    `json:"interval_ms"`
	QoS        int    `json:"qos"`
}

// Status is a point-in-time view of the whole bridge.
type Status struct {
	Listener     ListenerStatus `json:"listener"`
	Broker       BrokerStatus   `json:"broker"`
	Settings     SettingsView   `json:"settings"`
	CacheEntries int            `json:"cache_entries"`
	ActivitySize int            `json:"activity_size"`
	Publishing   PublisherStats `json:"publishing"`
}

// Bridge wires the Listener, Cache, Publisher and broker session together
// and exposes the operator actions.
//
// Listener actions are serialized through listenMu and broker
// connect/disconnect through connMu. A slow broker dial holds only connMu,
// so listening can be toggled meanwhile. Data paths take neither.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cache     *telemetry.Cache
	activity  *telemetry.ActivityLog
	settings  *SettingsStore
	listener  *Listener
	publisher *Publisher
	health    *HealthReporter
	metrics   MetricsRecorder
	dial      BrokerDialer

	listenMu   sync.Mutex
	listenAddr string
	listenPort int

	connMu     sync.Mutex
	brokerMu   sync.RWMutex
	broker     BrokerConn
	brokerAddr string

	sinkMu sync.RWMutex
	sink   EventSink

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctxCancel context.CancelFunc

	logSink
}

// NewBridge creates a new bridge instance.
// Call Start to begin publishing; listening starts on operator request.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("broker dialer is required")
	}

	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logSize := opts.ActivityLogSize
	if logSize <= 0 {
		logSize = telemetry.DefaultActivityCapacity
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	b := &Bridge{
		cache:      telemetry.NewCache(telemetry.WithAutoEnable(opts.AutoEnable...)),
		activity:   telemetry.NewActivityLog(logSize),
		settings:   NewSettingsStore(settings),
		metrics:    metrics,
		dial:       opts.Dial,
		listenAddr: opts.ListenAddress,
		listenPort: opts.ListenPort,
	}
	if b.listenAddr == "" {
		b.listenAddr = DefaultListenAddress
	}
	if b.listenPort == 0 {
		b.listenPort = DefaultListenPort
	}

	b.listener = NewListener(ListenerConfig{
		Open:           opts.Open,
		Cache:          gaugedCache{cache: b.cache, metrics: metrics},
		ReceiveTimeout: opts.ReceiveTimeout,
		Metrics:        metrics,
		OnStateChange:  b.onListenerState,
	})

	b.publisher = NewPublisher(PublisherConfig{
		Cache:        b.cache,
		Settings:     b.settings,
		Activity:     b.activity,
		PollInterval: opts.PollInterval,
		Metrics:      metrics,
		OnActivity:   b.onActivity,
	})

	if opts.HealthInterval > 0 {
		b.health = NewHealthReporter(HealthReporterConfig{
			Version:  opts.Version,
			Interval: opts.HealthInterval,
			Broker:   b.currentBroker,
			Status:   b.Status,
		})
	}

	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}

	return b, nil
}

// SetLogger sets the logger for the bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	b.logSink.SetLogger(logger)
	b.listener.SetLogger(logger)
	b.publisher.SetLogger(logger)
	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// SetEventSink sets the receiver of operator-facing events.
func (b *Bridge) SetEventSink(sink EventSink) {
	b.sinkMu.Lock()
	b.sink = sink
	b.sinkMu.Unlock()
}

// Start runs the publisher loop and health reporting until Stop.
func (b *Bridge) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.ctxCancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publisher.Run(runCtx)
	}()

	if b.health != nil {
		b.health.Start(runCtx)
	}

	b.logInfo("bridge started",
		"listen_address", b.listenAddr,
		"listen_port", b.listenPort)
}

// Stop stops listening, the publisher and health reporting, then closes
// the broker session.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.listener.Stop()

		if b.ctxCancel != nil {
			b.ctxCancel()
		}
		b.wg.Wait()

		if b.health != nil {
			b.health.Stop()
		}

		if err := b.DisconnectBroker(); err != nil {
			b.logError("closing broker session", err)
		}

		b.logInfo("bridge stopped")
	})
}

// ToggleListening starts listening on the configured endpoint when idle
// and stops it when listening. It returns the resulting state.
func (b *Bridge) ToggleListening() (ListenerState, error) {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()

	if b.listener.State() == StateListening {
		b.listener.Stop()
		return StateIdle, nil
	}

	if err := b.listener.Start(b.listenAddr, b.listenPort); err != nil {
		return StateIdle, err
	}
	return StateListening, nil
}

// StartListening starts listening on address:port and makes that the
// endpoint used by later toggles. No-op while already listening.
func (b *Bridge) StartListening(address string, port int) error {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()

	if b.listener.State() == StateListening {
		return nil
	}
	if err := b.listener.Start(address, port); err != nil {
		return err
	}
	b.listenAddr = address
	b.listenPort = port
	return nil
}

// StopListening stops the current session, waiting at most one receive
// timeout.
func (b *Bridge) StopListening() {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	b.listener.Stop()
}

// SetEnabled records the operator's intent to publish msgType.
func (b *Bridge) SetEnabled(msgType string, enabled bool) error {
	if err := b.cache.SetEnabled(msgType, enabled); err != nil {
		return err
	}
	b.logInfo("message type toggled", "type", msgType, "enabled", enabled)
	return nil
}

// ConnectBroker replaces the broker session with a new one to host:port.
//
// Any existing session is closed first. On failure the bridge is left
// without a session and the error wraps ErrBrokerConnect. The dial may
// block for the dialer's connect timeout; concurrent connect and
// disconnect requests wait for it.
func (b *Bridge) ConnectBroker(host string, port int) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if err := b.closeBroker(); err != nil {
		b.logWarn("closing previous broker session", "error", err)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := b.dial(host, port)
	if err != nil {
		b.logError("broker connect failed", err, "address", addr)
		b.emit(EventBrokerState, BrokerStatus{Connected: false, Address: addr})
		return fmt.Errorf("%w: %s: %w", ErrBrokerConnect, addr, err)
	}

	b.brokerMu.Lock()
	b.broker = conn
	b.brokerAddr = addr
	b.brokerMu.Unlock()

	b.publisher.SetBroker(conn)
	b.metrics.SetBrokerConnected(true)
	b.logInfo("broker connected", "address", addr)
	b.emit(EventBrokerState, BrokerStatus{Connected: true, Address: addr})

	if b.health != nil {
		if err := b.health.PublishNow(); err != nil {
			b.logError("failed to publish health", err)
		}
	}
	return nil
}

// DisconnectBroker closes the broker session, if any.
func (b *Bridge) DisconnectBroker() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.currentBroker() == nil {
		return nil
	}
	err := b.closeBroker()
	b.emit(EventBrokerState, BrokerStatus{Connected: false})
	return err
}

// closeBroker detaches and closes the current session. Caller holds connMu.
func (b *Bridge) closeBroker() error {
	b.publisher.SetBroker(nil)

	b.brokerMu.Lock()
	conn, addr := b.broker, b.brokerAddr
	b.broker = nil
	b.brokerAddr = ""
	b.brokerMu.Unlock()

	if conn == nil {
		return nil
	}

	b.metrics.SetBrokerConnected(false)
	b.logInfo("broker disconnected", "address", addr)
	return conn.Close()
}

// currentBroker returns the session as a Broker, or nil.
func (b *Bridge) currentBroker() Broker {
	b.brokerMu.RLock()
	defer b.brokerMu.RUnlock()
	if b.broker == nil {
		return nil
	}
	return b.broker
}

// UpdateConfig validates and applies new publish settings. They take
// effect from the next publisher emission.
func (b *Bridge) UpdateConfig(topic string, intervalMS int, qos int) error {
	if qos < 0 || qos > MaxQoS {
		return fmt.Errorf("%w: qos must be 0, 1 or 2, got %d", ErrInvalidSettings, qos)
	}
	s := Settings{
		Topic:    topic,
		Interval: time.Duration(intervalMS) * time.Millisecond,
		QoS:      byte(qos),
	}
	if err := b.settings.Set(s); err != nil {
		return err
	}
	b.logInfo("publish settings updated",
		"topic", topic,
		"interval_ms", intervalMS,
		"qos", qos)
	return nil
}

// Settings returns the current publish settings.
func (b *Bridge) Settings() Settings {
	return b.settings.Get()
}

// Entries returns every cached message type with its latest record.
func (b *Bridge) Entries() []telemetry.EntryView {
	return b.cache.Entries()
}

// Activity returns the recent publish attempts, oldest first.
func (b *Bridge) Activity() []telemetry.ActivityEntry {
	return b.activity.Entries()
}

// Status returns the current bridge status.
func (b *Bridge) Status() Status {
	s := b.settings.Get()

	b.brokerMu.RLock()
	broker := BrokerStatus{
		Connected: b.broker != nil && b.broker.IsConnected(),
		Address:   b.brokerAddr,
	}
	b.brokerMu.RUnlock()

	return Status{
		Listener: b.listener.Status(),
		Broker:   broker,
		Settings: SettingsView{
			Topic:      s.Topic,
			IntervalMS: s.IntervalMS(),
			QoS:        int(s.QoS),
		},
		CacheEntries: b.cache.Len(),
		ActivitySize: b.activity.Len(),
		Publishing:   b.publisher.Stats(),
	}
}

// Reset clears the cache and the activity log.
func (b *Bridge) Reset() {
	b.cache.Reset()
	b.activity.Reset()
	b.publisher.ResetThrottle()
	b.metrics.SetCacheEntries(0)
	b.logInfo("session reset")
}

// Tick runs one publisher step immediately.
func (b *Bridge) Tick(now time.Time) int {
	return b.publisher.Tick(now)
}

func (b *Bridge) onListenerState(state ListenerState, err error) {
	payload := map[string]any{"state": state}
	if err != nil {
		payload["error"] = err.Error()
	}
	b.emit(EventListenerState, payload)
}

func (b *Bridge) onActivity(entry telemetry.ActivityEntry) {
	b.emit(EventActivityAppended, entry)
}

// gaugedCache keeps the cache size gauge current as records arrive.
type gaugedCache struct {
	cache   *telemetry.Cache
	metrics MetricsRecorder
}

func (g gaugedCache) Upsert(rec telemetry.Record) error {
	if err := g.cache.Upsert(rec); err != nil {
		return err
	}
	g.metrics.SetCacheEntries(g.cache.Len())
	return nil
}

func (b *Bridge) emit(channel string, payload any) {
	b.sinkMu.RLock()
	sink := b.sink
	b.sinkMu.RUnlock()

	if sink != nil {
		sink.Broadcast(channel, payload)
	}
}
