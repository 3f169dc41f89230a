// Package publications implements publication management, including the bulk
// write operations.
package publications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/pkg/logger"
)

const (
	// MaxBulkCreate caps a single bulk create request.
	MaxBulkCreate = 50
	// MaxBulkWrite caps a single bulk update or bulk delete request.
	MaxBulkWrite = 100
)

// ErrTooManyItems is returned when a bulk request exceeds its cap.
var ErrTooManyItems = errors.New("publications: too many items in bulk request")

// Service manages publications for their owners.
type Service struct {
	store storage.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewService builds a Service.
func NewService(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("publications")
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) normalize(p publication.Publication) publication.Publication {
	p.Title = strings.TrimSpace(p.Title)
	p.Link = strings.TrimSpace(p.Link)
	return p
}

// Create validates and stores a new publication. Links are unique per owner.
func (s *Service) Create(ctx context.Context, p publication.Publication) (publication.Publication, error) {
	p = s.normalize(p)
	if err := p.Validate(s.now()); err != nil {
		return publication.Publication{}, err
	}
	created, err := s.store.CreatePublication(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return publication.Publication{}, validation.Errors{}.Add("link", "publication with this link already exists")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return publication.Publication{}, validation.Errors{}.Add("publisher", "publisher not found")
	}
	if err != nil {
		return publication.Publication{}, err
	}
	s.log.WithField("publication_id", created.ID).Info("Publication created")
	return created, nil
}

// Get returns a publication owned by the user.
func (s *Service) Get(ctx context.Context, ownerID, id string) (publication.Publication, error) {
	return s.store.GetPublication(ctx, ownerID, id)
}

// GetByLink looks a publication up by its exact link.
func (s *Service) GetByLink(ctx context.Context, ownerID, link string) (publication.Publication, error) {
	return s.store.GetPublicationByLink(ctx, ownerID, strings.TrimSpace(link))
}

// List returns the owner's publications matching the filter, with the total
// match count before pagination.
func (s *Service) List(ctx context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error) {
	return s.store.ListPublications(ctx, ownerID, f)
}

// ListVisible narrows a list to publications that are unhidden under an
// unhidden publisher.
func (s *Service) ListVisible(ctx context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error) {
	visible := false
	f.Hidden = &visible
	f.PublisherHid = &visible
	return s.store.ListPublications(ctx, ownerID, f)
}

const (
	// DefaultRecentDays is the window when none is requested.
	DefaultRecentDays = 7
	// MaxRecentDays bounds the recent window.
	MaxRecentDays = 365
)

// ListRecent returns publications published in the last days days. Zero or
// negative days fall back to the default; a window beyond a year is
// rejected.
func (s *Service) ListRecent(ctx context.Context, ownerID string, days int, page filter.Page) ([]publication.Publication, int, error) {
	if days > MaxRecentDays {
		return nil, 0, validation.Errors{}.Add("days", fmt.Sprintf("days must be at most %d", MaxRecentDays))
	}
	if days <= 0 {
		days = DefaultRecentDays
	}
	return s.store.ListPublications(ctx, ownerID, filter.Publication{DaysOld: days, Page: page})
}

// Search runs the token search. Unlike a plain list, a blank query is
// rejected rather than returning everything.
func (s *Service) Search(ctx context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error) {
	if len(f.SearchTokens) == 0 {
		return nil, 0, validation.Errors{}.Add("q", "q parameter is required")
	}
	return s.store.ListPublications(ctx, ownerID, f)
}

// Update replaces the writable fields of a publication.
func (s *Service) Update(ctx context.Context, p publication.Publication) (publication.Publication, error) {
	p = s.normalize(p)
	if err := p.Validate(s.now()); err != nil {
		return publication.Publication{}, err
	}
	updated, err := s.store.UpdatePublication(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return publication.Publication{}, validation.Errors{}.Add("link", "publication with this link already exists")
	}
	if err != nil {
		return publication.Publication{}, err
	}
	return updated, nil
}

// Delete removes a publication.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeletePublication(ctx, ownerID, id)
}

// BulkItem is the outcome of one entry in a bulk request. Index refers to
// the entry's position in the request body.
type BulkItem struct {
	Index       int
	Publication publication.Publication
	Err         error
}

// BulkResult summarizes a bulk operation. Failed entries keep their error;
// the rest carry the stored publication.
type BulkResult struct {
	Items     []BulkItem
	Succeeded int
	Failed    int
}

// BulkCreate stores up to MaxBulkCreate publications, continuing past
// per-item failures.
func (s *Service) BulkCreate(ctx context.Context, ownerID string, items []publication.Publication) (BulkResult, error) {
	if len(items) > MaxBulkCreate {
		return BulkResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, len(items), MaxBulkCreate)
	}
	var result BulkResult
	for i, item := range items {
		item.OwnerID = ownerID
		created, err := s.Create(ctx, item)
		result.Items = append(result.Items, BulkItem{Index: i, Publication: created, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	s.log.WithFields(map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Bulk create finished")
	return result, nil
}

// BulkFields holds the writable fields of a bulk update. Nil fields keep
// their current value.
type BulkFields struct {
	Hidden      *bool
	PublisherID *string
}

// BulkUpdate applies the given fields to up to MaxBulkWrite publications,
// continuing past per-item failures.
func (s *Service) BulkUpdate(ctx context.Context, ownerID string, ids []string, fields BulkFields) (BulkResult, error) {
	if len(ids) > MaxBulkWrite {
		return BulkResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, len(ids), MaxBulkWrite)
	}
	var result BulkResult
	for i, id := range ids {
		updated, err := s.applyBulkFields(ctx, ownerID, id, fields)
		result.Items = append(result.Items, BulkItem{Index: i, Publication: updated, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result, nil
}

func (s *Service) applyBulkFields(ctx context.Context, ownerID, id string, fields BulkFields) (publication.Publication, error) {
	current, err := s.store.GetPublication(ctx, ownerID, id)
	if err != nil {
		return publication.Publication{}, err
	}
	if fields.Hidden != nil {
		current.Hidden = *fields.Hidden
	}
	if fields.PublisherID != nil {
		current.PublisherID = *fields.PublisherID
	}
	return s.Update(ctx, current)
}

// BulkDelete removes up to MaxBulkWrite publications by ID, continuing past
// per-item failures.
func (s *Service) BulkDelete(ctx context.Context, ownerID string, ids []string) (BulkResult, error) {
	if len(ids) > MaxBulkWrite {
		return BulkResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, len(ids), MaxBulkWrite)
	}
	var result BulkResult
	for i, id := range ids {
		err := s.Delete(ctx, ownerID, id)
		result.Items = append(result.Items, BulkItem{Index: i, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result, nil
}
