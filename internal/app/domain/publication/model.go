package publication

import (
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/validation"
)

// MinTitleLength applies to the trimmed title.
const MinTitleLength = 5

// Publication is a single piece of content belonging to a publisher. Link is
// unique per owner, compared case-insensitively. PublishedAt is nil for
// undated publications; date filters and recency windows skip those.
type Publication struct {
	ID          string
	OwnerID     string
	PublisherID string
	Title       string
	Link        string
	Hidden      bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Annotations filled in by list queries, not stored columns.
	PublisherName   string
	PublisherHidden bool
}

// Validate checks the writable fields of a publication. now anchors the
// future-date check so callers and tests share a single clock.
func (p Publication) Validate(now time.Time) error {
	var errs validation.Errors
	if len(strings.TrimSpace(p.Title)) < MinTitleLength {
		errs = errs.Add("title", "title must be at least 5 characters long")
	}
	if strings.TrimSpace(p.Link) == "" {
		errs = errs.Add("link", "link is required")
	}
	if p.PublisherID == "" {
		errs = errs.Add("publisher", "publisher is required")
	}
	if p.PublishedAt != nil && p.PublishedAt.After(now) {
		errs = errs.Add("published_at", "published date cannot be in the future")
	}
	return errs.OrNil()
}
