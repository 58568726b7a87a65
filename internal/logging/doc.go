// Package logging provides structured logging for the agent using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every logger is named "vfl" and writes to stderr by default. Components take
// a child logger from Component so their entries carry the component name.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	defer logger.Close()
//	buf := buffer.NewAsync(handler, buffer.Config{Logger: logger.Component("buffer")})
//	logger.Error("Delivery failed", zap.String("category", "logs"), zap.Error(err))
package logging
