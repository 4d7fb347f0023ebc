package mavlink

import "time"

// HealthTopicName is the retained topic carrying bridge health.
const HealthTopicName = "mavbridge/health"

// BridgeName identifies this bridge in health messages.
const BridgeName = "mavlink"

// HealthTopic returns the topic for bridge health messages.
func HealthTopic() string {
	return HealthTopicName
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the listener is running and a broker is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is up but not receiving telemetry.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is initialising.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published to mavbridge/health.
type HealthMessage struct {
	// Bridge is the bridge identifier ("mavlink").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Listener describes the receive side.
	Listener ListenerStatus `json:"listener"`

	// CacheEntries is the number of distinct message types seen.
	CacheEntries int `json:"cache_entries"`

	// Publishing contains publish counters.
	Publishing PublisherStats `json:"publishing"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage creates a health message from a bridge status.
func NewHealthMessage(version string, status HealthStatus, st Status, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        BridgeName,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Listener:      st.Listener,
		CacheEntries:  st.CacheEntries,
		Publishing:    st.Publishing,
	}
}
