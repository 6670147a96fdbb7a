// Package logging provides structured logging for Neurite Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, console, or a file path
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("state changed", "from", "awaiting_network", "to", "awaiting_broker")
//
// With the interactive console, main redirects the shared destination to the
// console's writer (SetOutput) so log lines are printed above the prompt
// instead of through it.
//
// Components take a narrow Logger interface (Debug/Info/Warn/Error) rather
// than this type, so *Logger and *slog.Logger both satisfy them.
//
// Never log Wi-Fi passphrases or broker passwords.
package logging
