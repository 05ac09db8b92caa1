// Package logging provides structured logging for the TCP Connected bridge.
//
// It wraps log/slog so every entry carries the service name and build
// version:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	bridgeLog := logger.With("component", "tcp-bridge")
//	bridgeLog.Info("lights registered", "total", 4)
//
// Never log the gateway access token, JWT secret or passwords.
package logging
