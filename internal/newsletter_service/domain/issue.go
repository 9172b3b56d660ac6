package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterIssue is one broadcast. Immutable once created; the outbox
// writer is its sole writer.
type NewsletterIssue struct {
	ID          uuid.UUID
	Title       string
	TextContent string
	HTMLContent string
	PublishedAt time.Time
}

// NewNewsletterIssue creates an issue with a generated id and the publish
// timestamp set to now.
func NewNewsletterIssue(title, textContent, htmlContent string) *NewsletterIssue {
	return &NewsletterIssue{
		ID:          uuid.New(),
		Title:       title,
		TextContent: textContent,
		HTMLContent: htmlContent,
		PublishedAt: time.Now().UTC(),
	}
}
