// Package config provides 12-factor configuration management for the VFL agent.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML or TOML file can override environment values.
//
// Configuration Sections:
//   - Buffer: flush threshold, periodic interval, drain timeout, worker count
//   - Flush: handler selection (hub, spool, log, nop) and collector settings
//   - IDs: id strategy (ulid or uuidv7)
//   - Tracer: flush when a root block exits
//   - Logging: Log level and output format
//   - Admin: optional HTTP admin server
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Delivering to %s every %s\n", cfg.Flush.HubURL, cfg.Buffer.Interval)
//
// Environment Variables:
//   - VFL_BUFFER_MODE, VFL_BUFFER_SIZE, VFL_FLUSH_INTERVAL, VFL_DRAIN_TIMEOUT, VFL_FLUSH_WORKERS
//   - VFL_FLUSH_HANDLER, VFL_FLUSH_STRICT, VFL_HUB_URL, VFL_HUB_TIMEOUT, VFL_HUB_RETRIES
//   - VFL_HUB_GZIP, VFL_HUB_RATE_LIMIT, VFL_SPOOL_DIR
//   - VFL_ID_STRATEGY, VFL_FLUSH_ON_ROOT_EXIT
//   - VFL_LOG_LEVEL, VFL_LOG_DEV
//   - VFL_ADMIN_ENABLED, VFL_ADMIN_HOST, VFL_ADMIN_PORT
package config
