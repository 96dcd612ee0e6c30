// Package logging provides structured logging for the Gray Logic MIoT bridge.
//
// It wraps log/slog. Records are JSON by default, or text for local
// development, and always carry service and version fields. Long-lived
// components take a child logger from Component so their records can be
// filtered:
//
//	logger := logging.New(cfg.Logging, version)
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Warn("state message dropped", "topic", topic, "error", err)
//
// File output rotates by size:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/graylogic-miot.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 28      # days
//	    compress: true
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
