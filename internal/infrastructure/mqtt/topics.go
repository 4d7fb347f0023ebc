package mqtt

// Topic names used by the bridge itself. Telemetry goes to the operator's
// configured publish topic, not here.
const (
	// TopicPrefix is the base for all bridge-owned topics.
	TopicPrefix = "mavbridge"
)

// Topics provides builders for mavbridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Status() // "mavbridge/status"
type Topics struct{}

// Status returns the retained online/offline topic, also used for the LWT.
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// All returns a wildcard matching every bridge-owned topic.
func (Topics) All() string {
	return TopicPrefix + "/#"
}
