package models

import "time"

// InboxPayload is a self-contained capture handed off by a producer process
// that cannot write the primary store. Delivery is at-least-once: the
// consumer must convert it into records idempotently (fingerprint dedup).
type InboxPayload struct {
	// SourceID identifies the producing process/extension instance.
	SourceID string `json:"source_id" validate:"required"`

	CreatedAt time.Time `json:"created_at"`

	URLs           []string `json:"urls,omitempty"`
	Texts          []string `json:"texts,omitempty"`
	AttachmentRefs []string `json:"attachment_refs,omitempty"`
}

// Empty reports whether the payload carries nothing convertible.
func (p *InboxPayload) Empty() bool {
	return len(p.URLs) == 0 && len(p.Texts) == 0 && len(p.AttachmentRefs) == 0
}
