// Package inbox is the staging area between producer processes and the host
// process. Producers must not open a second writer on the primary store, so
// they append self-contained JSON payload files to a spool directory; the
// host drains the spool into regular record creates. Delivery is
// at-least-once and ingestion dedups by content fingerprint.
package inbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clipdeck/clipdeck/internal/models"
)

const spoolExt = ".json"

// Appender writes payloads into the spool. Safe for use from any process.
type Appender struct {
	dir      string
	validate *validator.Validate
}

func NewAppender(dir string) *Appender {
	return &Appender{dir: dir, validate: validator.New()}
}

// Append persists one payload as <uuid>.json. The file appears atomically
// via a temp-file rename, so a concurrent consumer never sees a partial
// document.
func (a *Appender) Append(p models.InboxPayload) error {
	if err := a.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid inbox payload: %w", err)
	}
	if p.Empty() {
		return fmt.Errorf("invalid inbox payload: no content")
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spool dir: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode inbox payload: %w", err)
	}

	name := uuid.NewString() + spoolExt
	tmp := filepath.Join(a.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(a.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish spool file: %w", err)
	}
	return nil
}
