package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/clipdeck/clipdeck/internal/client/repo"
	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/models"
)

const noteTitleLimit = 80

// Converter turns drafts into records without duplicating re-deliveries.
// Satisfied by repo.Repository.
type Converter interface {
	CreateIfAbsent(ctx context.Context, d repo.Draft) (*models.Record, bool, error)
}

// Consumer drains the spool into records. Only the host process runs one.
type Consumer struct {
	dir      string
	conv     Converter
	log      logging.Logger
	validate *validator.Validate
}

func NewConsumer(dir string, conv Converter, log logging.Logger) *Consumer {
	return &Consumer{dir: dir, conv: conv, log: log, validate: validator.New()}
}

// DrainOnce processes every pending payload file and reports how many
// records were created. A payload file is removed only after all of its
// drafts are committed, so a crash in between re-delivers the whole file;
// fingerprint dedup makes the replay harmless. A malformed file is moved
// aside and never blocks the rest.
func (c *Consumer) DrainOnce(ctx context.Context) (int, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list spool: %w", err)
	}

	created := 0
	for _, de := range dirents {
		if de.IsDir() || filepath.Ext(de.Name()) != spoolExt {
			continue
		}
		path := filepath.Join(c.dir, de.Name())

		p, err := c.readPayload(path)
		if err != nil {
			c.quarantine(ctx, path, err)
			continue
		}

		n, err := c.convert(ctx, p)
		created += n
		if err != nil {
			// Storage or quota trouble; keep the file for the next drain.
			return created, fmt.Errorf("failed to convert %s: %w", de.Name(), err)
		}

		if err := os.Remove(path); err != nil {
			return created, fmt.Errorf("failed to clear spool file: %w", err)
		}
	}
	return created, nil
}

func (c *Consumer) readPayload(path string) (*models.InboxPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p models.InboxPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPayloadCorrupt, err)
	}
	if err := c.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPayloadCorrupt, err)
	}
	return &p, nil
}

// convert issues one create per captured item. Re-delivered items come back
// created=false and are not counted.
func (c *Consumer) convert(ctx context.Context, p *models.InboxPayload) (int, error) {
	created := 0
	for _, d := range payloadDrafts(p) {
		_, fresh, err := c.conv.CreateIfAbsent(ctx, d)
		if err != nil {
			return created, err
		}
		if fresh {
			created++
		}
	}
	return created, nil
}

func (c *Consumer) quarantine(ctx context.Context, path string, cause error) {
	c.log.Warn(ctx, "skipping malformed inbox payload", "file", filepath.Base(path), "error", cause)
	if err := os.Rename(path, path+".corrupt"); err != nil {
		c.log.Error(ctx, "failed to quarantine inbox payload", "file", filepath.Base(path), "error", err)
	}
}

func payloadDrafts(p *models.InboxPayload) []repo.Draft {
	drafts := make([]repo.Draft, 0, len(p.URLs)+len(p.Texts)+len(p.AttachmentRefs))
	for _, u := range p.URLs {
		drafts = append(drafts, repo.Draft{Kind: models.KindLink, Title: u, URL: u})
	}
	for _, txt := range p.Texts {
		drafts = append(drafts, repo.Draft{Kind: models.KindNote, Title: noteTitle(txt), Body: txt})
	}
	for _, ref := range p.AttachmentRefs {
		drafts = append(drafts, repo.Draft{Kind: models.KindNote, Title: noteTitle(ref), Body: ref, Tags: []string{models.TagAttachment}})
	}
	return drafts
}

// noteTitle derives a display title from free text: the first line, capped.
func noteTitle(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > noteTitleLimit {
		line = string(r[:noteTitleLimit])
	}
	return line
}
