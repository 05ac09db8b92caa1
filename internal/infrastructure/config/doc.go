// Package config handles loading and validating the TCP Connected bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The gateway access token, MQTT password and JWT secret should be set via
//     environment variables (GRAYLOGIC_TCP_ACCESS_TOKEN, GRAYLOGIC_MQTT_PASSWORD,
//     GRAYLOGIC_JWT_SECRET)
//   - The config file should have restricted permissions (0600)
//   - API users store Argon2id hashes only, never plaintext passwords
//
// Usage:
//
//	cfg, err := config.Load("configs/tcpconnected.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.TCPConnected.Host)
package config
