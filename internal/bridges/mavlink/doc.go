// Package mavlink implements the MAVLink to MQTT telemetry bridge.
//
// # Architecture
//
//	UDP ──► Source ──► Listener ──► telemetry.Cache ──► Publisher ──► MQTT
//	        (gomavlib)   (goroutine)                     (poll ticker)
//
// The Listener and Publisher run in their own goroutines and share nothing
// but the Cache. The operator drives the Bridge facade: start/stop
// listening, enable message types, connect a broker and change the publish
// settings.
//
// # Listener
//
// One listen session at a time. Each receive waits at most ReceiveTimeout,
// so Stop returns within one timeout period. Records in the unknown
// category (message IDs missing from the dialect) are discarded. A decode
// error ends the session; the operator restarts it.
//
// # Publisher
//
// A fast poll ticker checks whether the configured interval has elapsed
// since the last emission. When it has, every enabled type's latest record
// is serialized and published to the configured topic. A failed publish is
// logged and recorded in the activity log but never stops the rest of the
// tick.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package mavlink
