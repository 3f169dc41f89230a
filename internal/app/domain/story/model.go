package story

import (
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/validation"
)

// Story is a curated collection of publications. At most one story per owner
// carries the current flag at any time.
type Story struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	IsCurrent   bool
	SourceIDs   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSource reports whether the publication is already attached.
func (s Story) HasSource(publicationID string) bool {
	for _, id := range s.SourceIDs {
		if id == publicationID {
			return true
		}
	}
	return false
}

// Validate checks the writable fields of a story.
func (s Story) Validate() error {
	var errs validation.Errors
	if strings.TrimSpace(s.Title) == "" {
		errs = errs.Add("title", "title is required")
	}
	return errs.OrNil()
}
