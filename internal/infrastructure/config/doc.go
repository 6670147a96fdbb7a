// Package config handles loading and validating Neurite Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Wi-Fi and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Topic templates and the MQTT client ID may contain {id}; Expand substitutes
// the device identity once it is known (configured or loaded from the
// identity store).
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(config.Expand(cfg.MQTT.Topics.To, "a1b2c3"))
package config
