package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/mavbridge/internal/bridges/mavlink"
	"github.com/nerrad567/mavbridge/internal/process"
	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// fakeController records calls and returns canned results.
type fakeController struct {
	mu sync.Mutex

	listening  bool
	listenAddr string
	listenPort int
	listenErr  error

	brokerAddr string
	connectErr error

	settings  mavlink.Settings
	entries   []telemetry.EntryView
	activity  []telemetry.ActivityEntry
	resets    int
	enabled   map[string]bool
	connected bool
}

func newFakeController() *fakeController {
	return &fakeController{
		settings: mavlink.DefaultSettings(),
		entries: []telemetry.EntryView{
			{Type: "HEARTBEAT", Enabled: true, Count: 3, Latest: telemetry.NewRecord("HEARTBEAT",
				telemetry.Field{Name: "mavpackettype", Value: telemetry.String("HEARTBEAT")},
				telemetry.Field{Name: "custom_mode", Value: telemetry.Uint(4)},
			)},
			{Type: "ATTITUDE", Enabled: false, Count: 1, Latest: telemetry.NewRecord("ATTITUDE",
				telemetry.Field{Name: "mavpackettype", Value: telemetry.String("ATTITUDE")},
				telemetry.Field{Name: "roll", Value: telemetry.Float(0.5)},
			)},
		},
		activity: []telemetry.ActivityEntry{
			{ID: "a1", Timestamp: time.Unix(0, 0).UTC(), Topic: "mavlink/msg", Type: "HEARTBEAT", Payload: `{"mavpackettype":"HEARTBEAT"}`},
		},
		enabled: map[string]bool{"HEARTBEAT": true, "ATTITUDE": false},
	}
}

func (f *fakeController) Status() mavlink.Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := mavlink.StateIdle
	if f.listening {
		state = mavlink.StateListening
	}
	return mavlink.Status{
		Listener: mavlink.ListenerStatus{State: state, Address: f.listenAddr, Port: f.listenPort},
		Broker:   mavlink.BrokerStatus{Connected: f.connected, Address: f.brokerAddr},
		Settings: mavlink.SettingsView{
			Topic:      f.settings.Topic,
			IntervalMS: f.settings.IntervalMS(),
			QoS:        int(f.settings.QoS),
		},
		CacheEntries: len(f.entries),
		ActivitySize: len(f.activity),
	}
}

func (f *fakeController) ToggleListening() (mavlink.ListenerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return mavlink.StateIdle, f.listenErr
	}
	f.listening = !f.listening
	if f.listening {
		return mavlink.StateListening, nil
	}
	return mavlink.StateIdle, nil
}

func (f *fakeController) StartListening(address string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listening = true
	f.listenAddr = address
	f.listenPort = port
	return nil
}

func (f *fakeController) StopListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = false
}

func (f *fakeController) ConnectBroker(host string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.brokerAddr = fmt.Sprintf("%s:%d", host, port)
	return nil
}

func (f *fakeController) DisconnectBroker() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.brokerAddr = ""
	return nil
}

func (f *fakeController) Settings() mavlink.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) UpdateConfig(topic string, intervalMS int, qos int) error {
	if qos < 0 || qos > mavlink.MaxQoS {
		return fmt.Errorf("%w: qos", mavlink.ErrInvalidSettings)
	}
	s := mavlink.Settings{
		Topic:    topic,
		Interval: time.Duration(intervalMS) * time.Millisecond,
		QoS:      byte(qos),
	}
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
	return nil
}

func (f *fakeController) Entries() []telemetry.EntryView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]telemetry.EntryView, len(f.entries))
	for i, e := range f.entries {
		e.Enabled = f.enabled[e.Type]
		out[i] = e
	}
	return out
}

func (f *fakeController) SetEnabled(msgType string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enabled[msgType]; !ok {
		return fmt.Errorf("%w: %q", telemetry.ErrUnknownType, msgType)
	}
	f.enabled[msgType] = enabled
	return nil
}

func (f *fakeController) Activity() []telemetry.ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]telemetry.ActivityEntry, len(f.activity))
	copy(out, f.activity)
	return out
}

func (f *fakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.entries = nil
	f.activity = nil
}

func (f *fakeController) setListenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenErr = err
}

func (f *fakeController) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeController) isEnabled(msgType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[msgType]
}

func (f *fakeController) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// fakeLocalBroker is an in-memory LocalBroker.
type fakeLocalBroker struct {
	mu       sync.Mutex
	running  bool
	startErr error
}

func (b *fakeLocalBroker) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	if b.running {
		return fmt.Errorf("%w: mosquitto", process.ErrAlreadyRunning)
	}
	b.running = true
	return nil
}

func (b *fakeLocalBroker) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

func (b *fakeLocalBroker) Toggle(ctx context.Context) (process.Status, error) {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()

	if running {
		return process.StatusStopped, b.Stop()
	}
	if err := b.Start(ctx); err != nil {
		return process.StatusFailed, err
	}
	return process.StatusRunning, nil
}

func (b *fakeLocalBroker) Stats() process.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := process.StatusStopped
	if b.running {
		status = process.StatusRunning
	}
	return process.Stats{Name: "mosquitto", Status: status, Args: []string{"-p", "1883"}}
}
