// Package config loads runtime configuration for the host daemon.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync backend
//	-d string   SQLite DSN of the primary store
//	-s string   spool directory of the cross-process inbox
//	-t string   backend access token
//	-i int      reachability probe interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "15s" or integer nanoseconds:
//
//	{
//	  "endpoint_url": "https://sync.clipdeck.dev",
//	  "database_dsn": "clipdeck.db",
//	  "spool_dir": "/var/spool/clipdeck",
//	  "probe_interval": "15s",
//	  "sync_max_attempts": 5,
//	  "backoff_cap": "5m"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
