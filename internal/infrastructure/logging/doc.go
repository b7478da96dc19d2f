// Package logging builds the controller's slog-based logger.
//
// Every entry carries service and version; main adds the bay id. Config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting control loop", "spots", 3)
//
// Hardware packages log under a "component" attribute so one stream can be
// filtered per subsystem. Log identities, never credentials.
package logging
