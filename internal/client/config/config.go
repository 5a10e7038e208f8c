package config

import "time"

// Config holds runtime settings for the host daemon.
//
// Units: all intervals are time.Duration values.
type Config struct {
	// EndpointURL is the base URL of the sync backend.
	EndpointURL string
	// DatabaseDSN is the SQLite DSN of the primary store.
	DatabaseDSN string
	// SpoolDir is the cross-process inbox directory shared with producers.
	SpoolDir string

	// AccessToken / RefreshToken authenticate against the backend.
	AccessToken  string
	RefreshToken string

	// ProbeInterval is how often reachability is probed.
	ProbeInterval time.Duration
	// ProbeDebounce is how long a reachability change must persist before
	// it is acted on.
	ProbeDebounce time.Duration
	// ConstrainedRTT is the probe round-trip above which the link counts
	// as constrained.
	ConstrainedRTT time.Duration

	// SyncInterval is the idle interval between drains.
	SyncInterval time.Duration
	// SyncBatchSize bounds one outbox claim.
	SyncBatchSize int
	// SyncWorkers is the number of concurrent submissions per drain.
	SyncWorkers int
	// SyncMaxAttempts is the automatic retry budget per entry.
	SyncMaxAttempts int
	// BackoffBase / BackoffCap shape the retry schedule.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// OutboxCapacity bounds pending entries (0 means unbounded).
	OutboxCapacity int

	// InboxDebounce batches bursts of spool appends into one drain.
	InboxDebounce time.Duration

	// QuotaRefreshInterval is how often entitlements are re-fetched.
	QuotaRefreshInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.EndpointURL = "http://127.0.0.1:8080"
	c.DatabaseDSN = "clipdeck.db"
	c.SpoolDir = "spool"
	c.ProbeInterval = 15 * time.Second
	c.ProbeDebounce = 2 * time.Second
	c.ConstrainedRTT = 800 * time.Millisecond
	c.SyncInterval = time.Minute
	c.SyncBatchSize = 32
	c.SyncWorkers = 4
	c.SyncMaxAttempts = 5
	c.BackoffBase = 2 * time.Second
	c.BackoffCap = 5 * time.Minute
	c.OutboxCapacity = 1000
	c.InboxDebounce = 200 * time.Millisecond
	c.QuotaRefreshInterval = 15 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
