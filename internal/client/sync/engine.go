// Package sync drains the outbox against the backend. The engine is the only
// component that talks to the network on behalf of records; it wakes on
// connectivity changes, on a periodic tick and on explicit kicks, and runs at
// most one drain at a time.
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clipdeck/clipdeck/internal/client/reachability"
	"github.com/clipdeck/clipdeck/internal/client/remote"
	"github.com/clipdeck/clipdeck/internal/client/repositories/outbox"
	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/dbx"
	"github.com/clipdeck/clipdeck/internal/events"
	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/models"
)

// Options tune the engine. Zero values pick the defaults.
type Options struct {
	// BatchSize bounds one ClaimDue round.
	BatchSize int
	// Workers is the number of concurrent submissions.
	Workers int
	// MaxAttempts is the automatic retry budget per entry.
	MaxAttempts int
	// BackoffBase and BackoffCap shape the retry schedule.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Interval between periodic drains while idle.
	Interval time.Duration
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 5 * time.Minute
	}
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
}

// Engine replays pending outbox entries against the backend.
type Engine struct {
	db     *sql.DB
	client remote.Client
	bus    *events.Bus
	log    logging.Logger
	opts   Options
	now    func() time.Time

	kick     chan struct{}
	draining sync.Mutex
	reach    atomic.Value
}

func NewEngine(db *sql.DB, client remote.Client, bus *events.Bus, log logging.Logger, opts Options) *Engine {
	opts.applyDefaults()
	e := &Engine{
		db:     db,
		client: client,
		bus:    bus,
		log:    log,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		kick:   make(chan struct{}, 1),
	}
	// Assume unconstrained connectivity until the monitor reports otherwise.
	e.reach.Store(reachability.StateFull)
	return e
}

// ObserveReachability updates the connectivity class the engine acts on:
// drains are skipped entirely while it is unreachable, and attachment-bearing
// entries only go out while it is full. Run keeps it current from bus events;
// callers that wire the engine next to a monitor should seed it from
// Monitor.State, since a monitor that starts offline announces no transition.
func (e *Engine) ObserveReachability(st reachability.State) {
	e.reach.Store(st)
}

// Kick requests a drain as soon as possible. It never blocks; a pending kick
// absorbs further ones.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Retry re-arms a record whose automatic attempts were exhausted and kicks a
// drain.
func (e *Engine) Retry(ctx context.Context, recordID string) error {
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := outbox.NewSQLiteRepository(tx).ResetAttempts(ctx, recordID, e.now()); err != nil {
			return err
		}
		return records.NewSQLiteRepository(tx).SetSyncState(ctx, recordID, models.StatePending, "")
	})
	if err != nil {
		return err
	}
	e.Kick()
	return nil
}

// Run drives the engine until ctx is cancelled. A drain starts on any
// transition to a reachable state, on the idle interval, and on Kick.
func (e *Engine) Run(ctx context.Context) {
	conn, cancel := e.bus.Subscribe(8)
	defer cancel()

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-conn:
			if !ok {
				return
			}
			if ev.Type == events.TypeConnectivityChanged {
				st := reachability.State(ev.Reachability)
				e.ObserveReachability(st)
				if st != reachability.StateUnreachable {
					e.Drain(ctx)
				}
			}
		case <-ticker.C:
			e.Drain(ctx)
		case <-e.kick:
			e.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain claims due entries in batches and submits them until the queue runs
// dry. Concurrent calls coalesce: a second caller waits for the running drain
// instead of starting another. While the backend is unreachable nothing is
// submitted and no attempt budget is spent; entries wait for reconnection.
func (e *Engine) Drain(ctx context.Context) {
	if e.reach.Load().(reachability.State) == reachability.StateUnreachable {
		e.log.Debug(ctx, "drain skipped, backend unreachable")
		return
	}

	e.draining.Lock()
	defer e.draining.Unlock()

	var processed, failed atomic.Int64

	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := outbox.NewSQLiteRepository(e.db).ClaimDue(ctx, e.now(), e.opts.MaxAttempts, e.opts.BatchSize)
		if err != nil {
			e.log.Error(ctx, "outbox claim failed", "error", err)
			e.bus.Publish(events.Event{Type: events.TypeDrainFailed, Err: err.Error()})
			return
		}
		if len(batch) == 0 {
			break
		}

		if e.reach.Load().(reachability.State) != reachability.StateFull {
			batch = holdBackLarge(batch)
			if len(batch) == 0 {
				break
			}
		}

		before := processed.Load()

		jobs := make(chan models.OutboxEntry)
		var wg sync.WaitGroup
		for i := 0; i < e.opts.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for entry := range jobs {
					if err := e.submit(ctx, entry); err != nil {
						failed.Add(1)
					} else {
						processed.Add(1)
					}
				}
			}()
		}
		for _, entry := range batch {
			jobs <- entry
		}
		close(jobs)
		wg.Wait()

		// Nothing moved forward; stop instead of hammering the same batch.
		if processed.Load() == before {
			break
		}
	}

	e.bus.Publish(events.Event{
		Type:      events.TypeDrainCompleted,
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	})
}

// submit replays one entry. A nil return means the entry moved forward
// (acknowledged, conflict resolved or discarded); an error means the entry
// stays queued for a later attempt.
func (e *Engine) submit(ctx context.Context, entry models.OutboxEntry) error {
	var fields models.Fields
	if err := json.Unmarshal(entry.Snapshot, &fields); err != nil {
		// A corrupt snapshot never becomes sendable; park the record.
		e.log.Error(ctx, "outbox snapshot corrupt", "record_id", entry.RecordID, "error", err)
		return e.park(ctx, entry, fmt.Sprintf("corrupt snapshot: %v", err))
	}

	var (
		resp *remote.RemoteRecord
		err  error
	)
	if entry.Operation == models.OpDelete {
		err = e.client.Delete(ctx, entry.RecordID, entry.BaseUpdatedAt)
	} else {
		resp, err = e.client.Upsert(ctx, remote.UpsertRequest{
			ID:            entry.RecordID,
			BaseUpdatedAt: entry.BaseUpdatedAt,
			Fields:        fields,
		})
	}

	if err == nil {
		return e.acknowledge(ctx, entry, resp)
	}

	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		return e.resolveConflict(ctx, entry, fields, conflict.Remote)
	}

	return e.transientFailure(ctx, entry, err)
}

// acknowledge finalizes a remotely accepted operation. The removal is seq
// conditional: when a newer local edit re-coalesced the entry mid-flight the
// record stays pending and the entry stays queued.
func (e *Engine) acknowledge(ctx context.Context, entry models.OutboxEntry, resp *remote.RemoteRecord) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := outbox.NewSQLiteRepository(tx).Remove(ctx, entry.RecordID, entry.Seq)
		if err != nil {
			return err
		}
		if !removed {
			e.log.Debug(ctx, "entry re-coalesced mid-flight, staying queued", "record_id", entry.RecordID)
			return nil
		}

		repo := records.NewSQLiteRepository(tx)
		if entry.Operation == models.OpDelete {
			return repo.Purge(ctx, entry.RecordID)
		}
		return repo.MarkSynced(ctx, entry.RecordID, resp.RemoteID, resp.Fields.UpdatedAt)
	})
}

// resolveConflict applies last-writer-wins between the submitted snapshot and
// the server's canonical copy. Equal timestamps break on the record ids so
// both sides of a two-device race settle identically; when the ids match too
// the copy the server already holds stands.
func (e *Engine) resolveConflict(ctx context.Context, entry models.OutboxEntry, local models.Fields, rm remote.RemoteRecord) error {
	localWins := local.UpdatedAt.After(rm.Fields.UpdatedAt) ||
		(local.UpdatedAt.Equal(rm.Fields.UpdatedAt) && entry.RecordID > rm.ID)

	if localWins {
		// Refresh the precondition to the canonical timestamp and resubmit.
		err := outbox.NewSQLiteRepository(e.db).SetBase(ctx, entry.RecordID, entry.Seq, rm.Fields.UpdatedAt, e.now())
		if err != nil {
			return err
		}
		e.log.Info(ctx, "conflict resolved, local copy wins", "record_id", entry.RecordID)
		e.bus.Publish(events.Event{Type: events.TypeConflictResolved, RecordID: entry.RecordID, Winner: "local"})
		return nil
	}

	var applied bool
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := outbox.NewSQLiteRepository(tx).Remove(ctx, entry.RecordID, entry.Seq)
		if err != nil {
			return err
		}
		if !removed {
			// A newer local edit exists; it will fight its own battle.
			return nil
		}
		applied = true

		repo := records.NewSQLiteRepository(tx)
		if rm.Fields.Deleted {
			return repo.Purge(ctx, entry.RecordID)
		}
		return repo.ApplyRemote(ctx, entry.RecordID, rm.RemoteID, rm.Fields)
	})
	if err != nil || !applied {
		return err
	}

	e.log.Info(ctx, "conflict resolved, remote copy wins", "record_id", entry.RecordID)
	e.bus.Publish(events.Event{Type: events.TypeConflictResolved, RecordID: entry.RecordID, Winner: "remote"})
	return nil
}

// transientFailure schedules the next attempt, or parks the record once the
// attempt budget is spent.
func (e *Engine) transientFailure(ctx context.Context, entry models.OutboxEntry, cause error) error {
	attempts := entry.AttemptCount + 1

	if attempts >= e.opts.MaxAttempts {
		if err := e.park(ctx, entry, cause.Error()); err != nil {
			return err
		}
		return fmt.Errorf("record %s parked after %d attempts: %w", entry.RecordID, attempts, cause)
	}

	next := e.now().Add(e.backoffDelay(entry.AttemptCount))
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return outbox.NewSQLiteRepository(tx).Fail(ctx, entry.RecordID, entry.Seq, cause.Error(), next)
	})
	if err != nil {
		return err
	}

	e.log.Warn(ctx, "sync attempt failed", "record_id", entry.RecordID, "attempt", attempts, "next_attempt_at", next, "error", cause)
	return cause
}

// park marks the record failed and spends the entry's attempt budget so
// ClaimDue skips it until a manual retry.
func (e *Engine) park(ctx context.Context, entry models.OutboxEntry, msg string) error {
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		obx := outbox.NewSQLiteRepository(tx)
		for i := entry.AttemptCount; i < e.opts.MaxAttempts; i++ {
			if err := obx.Fail(ctx, entry.RecordID, entry.Seq, msg, e.now().Add(e.opts.BackoffCap)); err != nil {
				return err
			}
		}
		return records.NewSQLiteRepository(tx).SetSyncState(ctx, entry.RecordID, models.StateFailed, msg)
	})
	if err != nil {
		return err
	}

	e.bus.Publish(events.Event{Type: events.TypeRecordFailed, RecordID: entry.RecordID, Err: msg})
	return nil
}

// holdBackLarge drops attachment-bearing entries from the batch; they stay
// queued untouched until connectivity is unconstrained again. Undecodable
// snapshots pass through so submit can park them.
func holdBackLarge(batch []models.OutboxEntry) []models.OutboxEntry {
	kept := batch[:0]
	for _, entry := range batch {
		var f models.Fields
		if err := json.Unmarshal(entry.Snapshot, &f); err == nil && slices.Contains(f.Tags, models.TagAttachment) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// backoffDelay returns the wait before attempt attempts+1, from an
// exponential schedule capped at BackoffCap.
func (e *Engine) backoffDelay(attempts int) time.Duration {
	b := retry.WithCappedDuration(e.opts.BackoffCap, retry.NewExponential(e.opts.BackoffBase))
	var d time.Duration
	for i := 0; i <= attempts; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}
