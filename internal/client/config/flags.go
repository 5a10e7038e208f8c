package config

import (
	"flag"
	"os"
	"time"

	"github.com/clipdeck/clipdeck/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the sync backend (default from Config)
//	-d string   SQLite DSN of the primary store
//	-s string   spool directory of the cross-process inbox
//	-t string   backend access token
//	-i int      reachability probe interval in seconds
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointURL, "a", cfg.EndpointURL, "base URL of the sync backend")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite DSN of the primary store")
	fs.StringVar(&cfg.SpoolDir, "s", cfg.SpoolDir, "spool directory of the cross-process inbox")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "backend access token")
	probeInterval := fs.Int("i", int(cfg.ProbeInterval.Seconds()), "reachability probe interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ProbeInterval = time.Duration(*probeInterval) * time.Second
}
