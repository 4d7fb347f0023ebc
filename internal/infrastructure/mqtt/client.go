package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with mavbridge-specific functionality.
//
// A Client is one broker session. It does not reconnect on its own: when
// the connection drops, IsConnected turns false and the operator connects
// again, which creates a new Client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	closeOnce sync.Once

	// Callback for connection loss (optional, set via WithOnDisconnect).
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for connection events (optional, set via WithLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// ConnectOption configures a Client before it connects.
type ConnectOption func(*Client)

// WithLogger sets the logger for connection events, including a failed
// online status publish during Connect.
func WithLogger(logger Logger) ConnectOption {
	return func(c *Client) { c.SetLogger(logger) }
}

// WithOnDisconnect sets the connection loss callback.
func WithOnDisconnect(callback func(err error)) ConnectOption {
	return func(c *Client) { c.SetOnDisconnect(callback) }
}

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) on mavbridge/status
//  3. Attempts the connection once, bounded by cfg.ConnectTimeout
//  4. Publishes online status to mavbridge/status
//
// Parameters:
//   - cfg: MQTT configuration (host and port select the broker)
//   - options: Applied before the connection attempt
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: Wrapping ErrConnectionFailed if the broker is unreachable or
//     refuses the session
func Connect(cfg config.MQTTConfig, options ...ConnectOption) (*Client, error) {
	c := newClient(cfg, options...)

	timeout := connectTimeout(c.cfg)
	c.client = pahomqtt.NewClient(c.options)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishOnlineStatus()

	return c, nil
}

// newClient builds an unconnected Client with its paho options and
// applies the ConnectOptions.
func newClient(cfg config.MQTTConfig, options ...ConnectOption) *Client {
	cfg.Broker.ClientID = resolveClientID(cfg.Broker.ClientID)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:     cfg,
		options: opts,
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	for _, opt := range options {
		opt(c)
	}
	return c
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost",
			"broker", brokerURL(c.cfg),
			"error", err,
		)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishOnlineStatus publishes the bridge's online status (retained).
func (c *Client) publishOnlineStatus() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	if err := c.PublishRetained(Topics{}.Status(), []byte(payload)); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("failed to publish online status", "error", err)
		}
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Safe to call more than once.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		if c.IsConnected() {
			payload := buildOfflinePayload(c.cfg.Broker.ClientID)
			token := c.client.Publish(Topics{}.Status(), byte(c.cfg.QoS), true, payload)
			token.WaitTimeout(defaultPublishTimeout)
		}

		c.client.Disconnect(defaultDisconnectQuiesce)

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
	})

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// ClientID returns the client identifier used for this session.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}

// SetOnDisconnect sets a callback to be invoked when the connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
