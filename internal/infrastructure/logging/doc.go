// Package logging provides structured logging for SciReCount Core.
//
// It wraps the standard log/slog package so every component logs with
// the same handler, level filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", cfg.API.Port)
//	logger.Component("broadcast").Warn("observer dropped", "observer_id", id)
//
// Never log secrets, tokens or passwords.
package logging
