// Package config handles loading and validating mavbridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with MAVBRIDGE_* environment variables
//   - Validation of ranges (ports, QoS, publish interval)
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, path, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(path, cfg.Publish.Topic)
package config
