// Package app assembles the host daemon: the single process that owns the
// primary store, drains the cross-process inbox and runs the sync engine.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/clipdeck/clipdeck/internal/client/config"
	"github.com/clipdeck/clipdeck/internal/client/inbox"
	"github.com/clipdeck/clipdeck/internal/client/quota"
	"github.com/clipdeck/clipdeck/internal/client/reachability"
	"github.com/clipdeck/clipdeck/internal/client/remote"
	"github.com/clipdeck/clipdeck/internal/client/repo"
	"github.com/clipdeck/clipdeck/internal/client/repositories/meta"
	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/client/store"
	syncengine "github.com/clipdeck/clipdeck/internal/client/sync"
	"github.com/clipdeck/clipdeck/internal/events"
	"github.com/clipdeck/clipdeck/internal/logging"
)

// tokenMetaKey is where the last issued token pair is persisted, so a
// restart keeps working after the login-time tokens expire.
const tokenMetaKey = "auth_tokens"

type storedTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// App wires the host daemon's components around one SQLite store and one
// backend client.
type App struct {
	cfg    *config.Config
	log    logging.Logger
	db     *sql.DB
	client *remote.HTTPClient

	bus      *events.Bus
	cache    *quota.Cache
	repo     *repo.SyncRepository
	monitor  *reachability.Monitor
	engine   *syncengine.Engine
	consumer *inbox.Consumer
	watcher  *inbox.Watcher
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	metaRepo := meta.NewSQLiteRepository(db)
	access, refresh := cfg.AccessToken, cfg.RefreshToken
	if raw, err := metaRepo.Get(ctx, tokenMetaKey); err != nil {
		log.Warn(ctx, "failed to load stored tokens", "error", err)
	} else if raw != nil {
		var st storedTokens
		if err := json.Unmarshal(raw, &st); err != nil {
			log.Warn(ctx, "stored tokens unreadable, using configured pair", "error", err)
		} else {
			access, refresh = st.AccessToken, st.RefreshToken
		}
	}

	client := remote.NewHTTPClient(cfg.EndpointURL)
	client.SetTokens(access, refresh)
	client.OnTokenRefresh(func(access, refresh string) {
		raw, err := json.Marshal(storedTokens{AccessToken: access, RefreshToken: refresh})
		if err == nil {
			err = metaRepo.Set(context.Background(), tokenMetaKey, raw)
		}
		if err != nil {
			log.Warn(context.Background(), "failed to persist refreshed tokens", "error", err)
		}
	})

	bus := events.NewBus()
	cache := quota.NewCache(client, quota.FreeTier, log)
	gate := quota.NewGate(cache, records.NewSQLiteRepository(db))
	r := repo.NewSyncRepository(db, gate, cfg.OutboxCapacity)

	monitor := reachability.NewMonitor(client, bus, log, reachability.Options{
		Interval:       cfg.ProbeInterval,
		ConstrainedRTT: cfg.ConstrainedRTT,
		Debounce:       cfg.ProbeDebounce,
	})
	engine := syncengine.NewEngine(db, client, bus, log, syncengine.Options{
		BatchSize:   cfg.SyncBatchSize,
		Workers:     cfg.SyncWorkers,
		MaxAttempts: cfg.SyncMaxAttempts,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		Interval:    cfg.SyncInterval,
	})
	// The monitor only announces transitions; seed the engine with its
	// current state.
	engine.ObserveReachability(monitor.State())

	consumer := inbox.NewConsumer(cfg.SpoolDir, r, log)
	app := &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		client:   client,
		bus:      bus,
		cache:    cache,
		repo:     r,
		monitor:  monitor,
		engine:   engine,
		consumer: consumer,
	}
	app.watcher = inbox.NewWatcher(cfg.SpoolDir, cfg.InboxDebounce, app.drainInbox, log)

	return app, nil
}

// Repo exposes the record surface for embedding UIs.
func (a *App) Repo() *repo.SyncRepository { return a.repo }

// Events exposes the notification bus for UI/telemetry subscribers.
func (a *App) Events() *events.Bus { return a.bus }

// drainInbox converts pending producer payloads and nudges the engine when
// anything new arrived.
func (a *App) drainInbox(ctx context.Context) (int, error) {
	n, err := a.consumer.DrainOnce(ctx)
	if n > 0 {
		a.engine.Kick()
	}
	return n, err
}

// Run starts the background loops and blocks until ctx is cancelled.
// SIGUSR1 acts as a foreground-activation signal: it forces a reachability
// probe, an inbox drain and a sync kick.
func (a *App) Run(ctx context.Context) error {
	if err := a.cache.Refresh(ctx); err != nil {
		a.log.Warn(ctx, "initial entitlement fetch failed, using fallback", "error", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.engine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cache.Run(ctx, a.cfg.QuotaRefreshInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.watcher.Run(ctx); err != nil {
			a.log.Error(ctx, "spool watcher stopped", "error", err)
		}
	}()

	activate := make(chan os.Signal, 1)
	signal.Notify(activate, syscall.SIGUSR1)
	defer signal.Stop(activate)

	for {
		select {
		case <-activate:
			a.log.Info(ctx, "activation signal received")
			a.monitor.Probe(ctx)
			if _, err := a.drainInbox(ctx); err != nil {
				a.log.Error(ctx, "inbox drain failed", "error", err)
			}
			a.engine.Kick()
		case <-ctx.Done():
			wg.Wait()
			return a.Close()
		}
	}
}

func (a *App) Close() error {
	if err := a.client.Close(); err != nil {
		return err
	}
	return a.db.Close()
}
