// mavbridge - MAVLink to MQTT telemetry bridge
//
// mavbridge listens for MAVLink telemetry on a UDP endpoint, keeps the latest
// message of every type, and republishes the types an operator has enabled
// to an MQTT topic at a fixed interval. Operators drive it through the HTTP
// API and WebSocket feed.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nerrad567/mavbridge/internal/api"
	"github.com/nerrad567/mavbridge/internal/auth"
	"github.com/nerrad567/mavbridge/internal/bridges/mavlink"
	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
	"github.com/nerrad567/mavbridge/internal/infrastructure/logging"
	"github.com/nerrad567/mavbridge/internal/infrastructure/metrics"
	"github.com/nerrad567/mavbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/mavbridge/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mavbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "closing log output: %v\n", closeErr)
		}
	}()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	m := metrics.New()

	bridge, err := mavlink.NewBridge(mavlink.BridgeOptions{
		ListenAddress:  cfg.Transport.Address,
		ListenPort:     cfg.Transport.Port,
		ReceiveTimeout: cfg.GetReceiveTimeout(),
		Settings: mavlink.Settings{
			Topic:    cfg.Publish.Topic,
			Interval: cfg.GetPublishInterval(),
			QoS:      byte(cfg.Publish.QoS),
		},
		PollInterval:    cfg.GetPollInterval(),
		ActivityLogSize: cfg.Publish.ActivityLogSize,
		AutoEnable:      cfg.Publish.AutoEnable,
		Dial:            brokerDialer(cfg.MQTT, log),
		Metrics:         m,
		HealthInterval:  cfg.GetHealthInterval(),
		Version:         version,
		Logger:          log.With("component", "mavlink"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	var localBroker *process.Manager
	if cfg.LocalBroker.Managed {
		localBroker = process.NewManager(process.BrokerConfig(cfg.LocalBroker))
		localBroker.SetLogger(log.With("component", "local_broker"))
		defer func() {
			log.Info("stopping local broker")
			if stopErr := localBroker.Stop(); stopErr != nil {
				log.Error("error stopping local broker", "error", stopErr)
			}
		}()
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return fmt.Errorf("configuring API auth: %w", err)
	}
	if authenticator != nil {
		log.Info("API authentication enabled", "accounts", len(cfg.API.Auth.Accounts))
	} else {
		log.Warn("API authentication disabled, every route is open")
	}

	hub := api.NewHub(cfg.WebSocket, log)
	bridge.SetEventSink(hub)

	deps := api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Metrics:        cfg.Metrics,
		Logger:         log,
		Bridge:         bridge,
		MetricsHandler: m.Handler(),
		ExternalHub:    hub,
		Auth:           authenticator,
		Version:        version,
	}
	if localBroker != nil {
		deps.LocalBroker = localBroker
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	go hub.Run(ctx)

	bridge.Start(ctx)
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	startup(ctx, cfg, bridge, localBroker, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (listener, publisher, broker session)
	// 3. Local broker
	// 4. Log output

	log.Info("mavbridge stopped")
	return nil
}

// startup performs the optional start-time actions. Failures are logged and
// left for the operator to retry through the API.
func startup(ctx context.Context, cfg *config.Config, bridge *mavlink.Bridge, localBroker *process.Manager, log *logging.Logger) {
	if localBroker != nil && cfg.LocalBroker.Autostart {
		if err := localBroker.Start(ctx); err != nil {
			log.Warn("local broker failed to start", "error", err)
		}
	}

	if cfg.MQTT.Autoconnect {
		if err := bridge.ConnectBroker(cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port); err != nil {
			log.Warn("broker autoconnect failed", "error", err)
		}
	}

	if cfg.Transport.Autostart {
		if err := bridge.StartListening(cfg.Transport.Address, cfg.Transport.Port); err != nil {
			log.Warn("listener autostart failed", "error", err)
		}
	}
}

// brokerDialer returns the bridge's BrokerDialer. Each session uses the
// configured MQTT settings with the host and port chosen by the operator.
//
// Parameters:
//   - base: MQTT settings shared by every session
//   - log: Logger for connection events, attached before connecting
//
// Returns:
//   - mavlink.BrokerDialer: Dialer creating *mqtt.Client sessions
func brokerDialer(base config.MQTTConfig, log *logging.Logger) mavlink.BrokerDialer {
	return func(host string, port int) (mavlink.BrokerConn, error) {
		cfg := base
		cfg.Broker.Host = host
		cfg.Broker.Port = port

		client, err := mqtt.Connect(cfg, mqtt.WithLogger(log))
		if err != nil {
			return nil, err
		}

		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", host, port),
			"client_id", client.ClientID(),
		)
		return client, nil
	}
}

// newAuthenticator builds the operator authenticator, or returns nil when
// API auth is disabled.
func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	if !cfg.API.Auth.Enabled {
		return nil, nil //nolint:nilnil // nil authenticator means auth is off
	}

	accounts := make([]auth.Account, 0, len(cfg.API.Auth.Accounts))
	for _, a := range cfg.API.Auth.Accounts {
		accounts = append(accounts, auth.Account{
			Username:     a.Username,
			PasswordHash: a.PasswordHash,
			Role:         auth.Role(a.Role),
		})
	}
	return auth.NewAuthenticator(cfg.API.Auth.JWTSecret, cfg.GetTokenTTL(), accounts)
}

// hashPassword reads a password from the first line of in and writes its
// Argon2id hash to out, for pasting into api.auth.accounts.
func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
