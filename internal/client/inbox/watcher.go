package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clipdeck/clipdeck/internal/logging"
)

// Watcher wakes the consumer when producers drop files into the spool.
// Events are debounced so a burst of appends triggers a single drain.
type Watcher struct {
	dir      string
	debounce time.Duration
	drain    func(ctx context.Context) (int, error)
	log      logging.Logger
}

func NewWatcher(dir string, debounce time.Duration, drain func(ctx context.Context) (int, error), log logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{dir: dir, debounce: debounce, drain: drain, log: log}
}

// Run watches the spool until ctx is cancelled. One drain fires immediately
// to pick up files appended while the host was down.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create spool watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch spool dir: %w", err)
	}

	w.runDrain(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != spoolExt {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "spool watcher error", "error", err)

		case <-timer.C:
			w.runDrain(ctx)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) runDrain(ctx context.Context) {
	n, err := w.drain(ctx)
	if err != nil {
		w.log.Error(ctx, "inbox drain failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Info(ctx, "inbox drained", "records_created", n)
	}
}
