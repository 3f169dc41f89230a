package publisher

import (
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/validation"
)

// Publisher is a content source owned by a single user. Name uniqueness is
// case-insensitive per owner.
type Publisher struct {
	ID        string
	OwnerID   string
	Name      string
	Link      string
	Hidden    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats summarizes a publisher's catalog. Visibility of individual
// publications depends only on the publication's own hidden flag.
type Stats struct {
	PublicationCount        int
	VisiblePublicationCount int
	LatestPublicationAt     *time.Time
}

// Validate checks the writable fields of a publisher.
func (p Publisher) Validate() error {
	var errs validation.Errors
	if strings.TrimSpace(p.Name) == "" {
		errs = errs.Add("name", "name is required")
	}
	if strings.TrimSpace(p.Link) == "" {
		errs = errs.Add("link", "link is required")
	}
	return errs.OrNil()
}
