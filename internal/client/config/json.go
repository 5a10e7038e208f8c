package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/clipdeck/clipdeck/internal/flagx"
	"github.com/clipdeck/clipdeck/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds.
type JsonConfig struct {
	EndpointURL          string         `json:"endpoint_url"`
	DatabaseDSN          string         `json:"database_dsn"`
	SpoolDir             string         `json:"spool_dir"`
	AccessToken          string         `json:"access_token"`
	RefreshToken         string         `json:"refresh_token"`
	ProbeInterval        timex.Duration `json:"probe_interval"`
	ProbeDebounce        timex.Duration `json:"probe_debounce"`
	ConstrainedRTT       timex.Duration `json:"constrained_rtt"`
	SyncInterval         timex.Duration `json:"sync_interval"`
	SyncBatchSize        int            `json:"sync_batch_size"`
	SyncWorkers          int            `json:"sync_workers"`
	SyncMaxAttempts      int            `json:"sync_max_attempts"`
	BackoffBase          timex.Duration `json:"backoff_base"`
	BackoffCap           timex.Duration `json:"backoff_cap"`
	OutboxCapacity       int            `json:"outbox_capacity"`
	InboxDebounce        timex.Duration `json:"inbox_debounce"`
	QuotaRefreshInterval timex.Duration `json:"quota_refresh_interval"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flags. Absent fields keep their current values. Read or
// unmarshal errors panic; configuration is resolved once at startup and a
// broken file should stop the process.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointURL != "" {
		cfg.EndpointURL = jc.EndpointURL
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SpoolDir != "" {
		cfg.SpoolDir = jc.SpoolDir
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.RefreshToken != "" {
		cfg.RefreshToken = jc.RefreshToken
	}
	if jc.ProbeInterval.Duration > 0 {
		cfg.ProbeInterval = time.Duration(jc.ProbeInterval.Duration)
	}
	if jc.ProbeDebounce.Duration > 0 {
		cfg.ProbeDebounce = time.Duration(jc.ProbeDebounce.Duration)
	}
	if jc.ConstrainedRTT.Duration > 0 {
		cfg.ConstrainedRTT = time.Duration(jc.ConstrainedRTT.Duration)
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.SyncBatchSize > 0 {
		cfg.SyncBatchSize = jc.SyncBatchSize
	}
	if jc.SyncWorkers > 0 {
		cfg.SyncWorkers = jc.SyncWorkers
	}
	if jc.SyncMaxAttempts > 0 {
		cfg.SyncMaxAttempts = jc.SyncMaxAttempts
	}
	if jc.BackoffBase.Duration > 0 {
		cfg.BackoffBase = time.Duration(jc.BackoffBase.Duration)
	}
	if jc.BackoffCap.Duration > 0 {
		cfg.BackoffCap = time.Duration(jc.BackoffCap.Duration)
	}
	if jc.OutboxCapacity > 0 {
		cfg.OutboxCapacity = jc.OutboxCapacity
	}
	if jc.InboxDebounce.Duration > 0 {
		cfg.InboxDebounce = time.Duration(jc.InboxDebounce.Duration)
	}
	if jc.QuotaRefreshInterval.Duration > 0 {
		cfg.QuotaRefreshInterval = time.Duration(jc.QuotaRefreshInterval.Duration)
	}
}
