// Package telemetry holds the data shared between the MAVLink listener and
// the MQTT publisher.
//
// It provides:
//   - Value and Record: decoded messages as ordered, typed field lists
//   - Cache: latest record per message type plus an enablement flag
//   - ActivityLog: bounded history of recent publishes
//
// # Concurrency
//
// The Cache is the only state the listener and publisher share. The
// listener writes latest records, the operator toggles enablement, and the
// publisher takes snapshots. No lock is held while a record is serialized
// or published.
//
// # Serialization
//
// Records serialize to a JSON object with keys in field order. Byte
// sequences render as lowercase hex, and NaN or infinite floats as null.
//
//	rec := telemetry.NewRecord("DATA16",
//	    telemetry.Field{Name: "len", Value: telemetry.Uint(2)},
//	    telemetry.Field{Name: "data", Value: telemetry.Bytes([]byte{0xde, 0xad})},
//	)
//	payload, _ := rec.Printable().Serialize() // {"len":2,"data":"dead"}
package telemetry
