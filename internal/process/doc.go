// Package process supervises the optional local MQTT broker.
//
// The bridge can spawn "mosquitto -p <port>" so a bench setup needs no
// separately installed service. The manager starts the binary in its own
// process group, forwards its output to the logger and stops it with SIGTERM,
// following up with SIGKILL after the graceful timeout. A broker that exits
// on its own is reported as failed and left stopped.
//
// Example usage:
//
//	mgr := process.NewManager(process.BrokerConfig(cfg.LocalBroker))
//	mgr.SetLogger(log)
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
