// Package mqtt provides MQTT client connectivity for mavbridge.
//
// This package manages:
//   - One broker session per Client, established on operator request
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health checks
//
// # Architecture
//
//	MAVLink (UDP) → mavbridge → MQTT broker → subscribers
//
// The bridge only publishes. Automatic reconnection is disabled: a dropped
// session is reported through IsConnected and SetOnDisconnect, and the
// operator reconnects explicitly.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) for brokers outside the local host
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish("mavlink/msg", payload, 0, false)
package mqtt
