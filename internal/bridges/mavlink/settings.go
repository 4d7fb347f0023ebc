package mavlink

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Publish setting bounds and defaults.
const (
	DefaultTopic    = "mavlink/msg"
	DefaultInterval = 500 * time.Millisecond
	MinInterval     = 50 * time.Millisecond
	MaxInterval     = 5000 * time.Millisecond
	MaxQoS          = 2
)

// Settings controls where and how often the Publisher emits.
type Settings struct {
	Topic    string
	Interval time.Duration
	QoS      byte
}

// DefaultSettings returns topic mavlink/msg, 500ms, QoS 0.
func DefaultSettings() Settings {
	return Settings{
		Topic:    DefaultTopic,
		Interval: DefaultInterval,
		QoS:      0,
	}
}

// Validate checks the settings against their allowed ranges.
// All problems are reported together.
func (s Settings) Validate() error {
	var errs []string

	if strings.TrimSpace(s.Topic) == "" {
		errs = append(errs, "topic is required")
	}
	if strings.ContainsAny(s.Topic, "+#") {
		errs = append(errs, "topic must not contain wildcards")
	}
	if s.Interval < MinInterval || s.Interval > MaxInterval {
		errs = append(errs, fmt.Sprintf("interval must be between %s and %s, got %s", MinInterval, MaxInterval, s.Interval))
	}
	if s.QoS > MaxQoS {
		errs = append(errs, fmt.Sprintf("qos must be 0, 1 or 2, got %d", s.QoS))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// IntervalMS returns the interval in whole milliseconds.
func (s Settings) IntervalMS() int {
	return int(s.Interval / time.Millisecond)
}

// SettingsStore holds the live publish settings. The Publisher reads them
// at the start of every tick, so a change applies from the next emission.
type SettingsStore struct {
	mu sync.RWMutex
	s  Settings
}

// NewSettingsStore creates a store holding s. Invalid settings are
// replaced by DefaultSettings.
func NewSettingsStore(s Settings) *SettingsStore {
	if s.Validate() != nil {
		s = DefaultSettings()
	}
	return &SettingsStore{s: s}
}

// Get returns the current settings.
func (st *SettingsStore) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Set validates and stores s. On error the current settings are kept.
func (st *SettingsStore) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
	return nil
}
