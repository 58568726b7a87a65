// Package main is the vfl command line tool.
//
// Commands:
//
//	vfl demo     Run the sample traces against the configured flush handler
//	vfl replay   Re-deliver spooled batches to the hub
//	vfl config   Print the effective configuration as YAML
//
// Configuration:
//   - Environment variables (VFL_*)
//   - --config FILE (YAML or TOML) overrides the environment
//
// Signals:
//   - SIGINT, SIGTERM: stop and drain pending trace data
package main
