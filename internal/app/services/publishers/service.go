// Package publishers implements publisher management on top of the storage
// layer.
package publishers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/pkg/logger"
)

// MaxBulkWrite caps a single bulk update or bulk delete request.
const MaxBulkWrite = 100

// ErrTooManyItems is returned when a bulk request exceeds its cap.
var ErrTooManyItems = errors.New("publishers: too many items in bulk request")

// Service manages publishers for their owners.
type Service struct {
	store storage.Store
	log   *logger.Logger
}

// NewService builds a Service.
func NewService(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("publishers")
	}
	return &Service{store: store, log: log}
}

// Create validates and stores a new publisher. Names are unique per owner,
// compared case-insensitively.
func (s *Service) Create(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Link = strings.TrimSpace(p.Link)
	if err := p.Validate(); err != nil {
		return publisher.Publisher{}, err
	}
	created, err := s.store.CreatePublisher(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return publisher.Publisher{}, s.conflictError(ctx, p)
	}
	if err != nil {
		return publisher.Publisher{}, err
	}
	s.log.WithField("publisher_id", created.ID).Info("Publisher created")
	return created, nil
}

// conflictError reports which unique field collided. Name collisions are
// checked first; anything else must be the link.
func (s *Service) conflictError(ctx context.Context, p publisher.Publisher) error {
	if existing, err := s.store.GetPublisherByName(ctx, p.OwnerID, p.Name); err == nil && existing.ID != p.ID {
		return validation.Errors{}.Add("name", "publisher with this name already exists")
	}
	return validation.Errors{}.Add("link", "publisher with this website already exists")
}

// Get returns a publisher owned by the user.
func (s *Service) Get(ctx context.Context, ownerID, id string) (publisher.Publisher, error) {
	return s.store.GetPublisher(ctx, ownerID, id)
}

// List returns the owner's publishers matching the filter, with the total
// match count before pagination.
func (s *Service) List(ctx context.Context, ownerID string, f filter.Publisher) ([]publisher.Publisher, int, error) {
	return s.store.ListPublishers(ctx, ownerID, f)
}

// Update replaces the writable fields of a publisher. Renaming onto another
// publisher's name fails; keeping the same name on the same record does not.
func (s *Service) Update(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Link = strings.TrimSpace(p.Link)
	if err := p.Validate(); err != nil {
		return publisher.Publisher{}, err
	}
	updated, err := s.store.UpdatePublisher(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return publisher.Publisher{}, s.conflictError(ctx, p)
	}
	if err != nil {
		return publisher.Publisher{}, err
	}
	return updated, nil
}

// Delete removes a publisher and all of its publications.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeletePublisher(ctx, ownerID, id); err != nil {
		return err
	}
	s.log.WithField("publisher_id", id).Info("Publisher deleted")
	return nil
}

// Stats returns the publication counts for a publisher. Visible counts
// consider only the publication's own hidden flag.
func (s *Service) Stats(ctx context.Context, ownerID, id string) (publisher.Stats, error) {
	return s.store.PublisherStats(ctx, ownerID, id)
}

// BulkFields holds the writable fields of a bulk update. Nil fields keep
// their current value.
type BulkFields struct {
	Hidden *bool
	Link   *string
}

// BulkItem is the outcome of one entry in a bulk request.
type BulkItem struct {
	Index     int
	Publisher publisher.Publisher
	Err       error
}

// BulkResult summarizes a bulk operation.
type BulkResult struct {
	Items     []BulkItem
	Succeeded int
	Failed    int
}

// BulkUpdate applies the given fields to up to MaxBulkWrite publishers,
// continuing past per-item failures.
func (s *Service) BulkUpdate(ctx context.Context, ownerID string, ids []string, fields BulkFields) (BulkResult, error) {
	if len(ids) > MaxBulkWrite {
		return BulkResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, len(ids), MaxBulkWrite)
	}
	var result BulkResult
	for i, id := range ids {
		updated, err := s.applyBulkFields(ctx, ownerID, id, fields)
		result.Items = append(result.Items, BulkItem{Index: i, Publisher: updated, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	s.log.WithFields(map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Publisher bulk update finished")
	return result, nil
}

func (s *Service) applyBulkFields(ctx context.Context, ownerID, id string, fields BulkFields) (publisher.Publisher, error) {
	current, err := s.store.GetPublisher(ctx, ownerID, id)
	if err != nil {
		return publisher.Publisher{}, err
	}
	if fields.Hidden != nil {
		current.Hidden = *fields.Hidden
	}
	if fields.Link != nil {
		current.Link = strings.TrimSpace(*fields.Link)
	}
	return s.Update(ctx, current)
}

// BulkDelete removes up to MaxBulkWrite publishers by ID, continuing past
// per-item failures. Each deleted publisher takes its publications with it.
func (s *Service) BulkDelete(ctx context.Context, ownerID string, ids []string) (BulkResult, error) {
	if len(ids) > MaxBulkWrite {
		return BulkResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyItems, len(ids), MaxBulkWrite)
	}
	var result BulkResult
	for i, id := range ids {
		err := s.store.DeletePublisher(ctx, ownerID, id)
		result.Items = append(result.Items, BulkItem{Index: i, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result, nil
}

// TopPublisher is one entry of the meta report's publication-count ranking.
type TopPublisher struct {
	ID               string
	Name             string
	PublicationCount int
}

// Meta summarizes an account's whole catalog. Unlike per-publisher stats, a
// publication only counts as visible here when its publisher is also
// unhidden.
type Meta struct {
	PublisherCount          int
	VisiblePublisherCount   int
	HiddenPublisherCount    int
	PublicationCount        int
	VisiblePublicationCount int
	HiddenPublicationCount  int
	LatestPublicationAt     *time.Time
	PublishedToday          int
	PublishedThisWeek       int
	PublishedThisMonth      int
	TopPublishers           []TopPublisher
	AvgPublicationsPerPub   float64
	VisibleRatio            float64
}

// BuildMeta computes catalog-wide counts for the owner. The top-publishers
// ranking keeps the five largest, ties broken by name.
func (s *Service) BuildMeta(ctx context.Context, ownerID string) (Meta, error) {
	pubs, _, err := s.store.ListPublishers(ctx, ownerID, filter.Publisher{})
	if err != nil {
		return Meta{}, err
	}
	items, _, err := s.store.ListPublications(ctx, ownerID, filter.Publication{})
	if err != nil {
		return Meta{}, err
	}

	now := time.Now().UTC()
	var meta Meta
	meta.PublisherCount = len(pubs)
	for _, p := range pubs {
		if p.Hidden {
			meta.HiddenPublisherCount++
		} else {
			meta.VisiblePublisherCount++
		}
	}

	perPublisher := make(map[string]int)
	meta.PublicationCount = len(items)
	for _, item := range items {
		perPublisher[item.PublisherID]++
		if !item.Hidden && !item.PublisherHidden {
			meta.VisiblePublicationCount++
		} else {
			meta.HiddenPublicationCount++
		}
		if item.PublishedAt == nil {
			// Undated publications count toward totals but never toward
			// recency windows.
			continue
		}
		if meta.LatestPublicationAt == nil || item.PublishedAt.After(*meta.LatestPublicationAt) {
			at := *item.PublishedAt
			meta.LatestPublicationAt = &at
		}
		age := now.Sub(*item.PublishedAt)
		if age >= 0 {
			if age < 24*time.Hour {
				meta.PublishedToday++
			}
			if age < 7*24*time.Hour {
				meta.PublishedThisWeek++
			}
			if age < 30*24*time.Hour {
				meta.PublishedThisMonth++
			}
		}
	}

	for _, p := range pubs {
		meta.TopPublishers = append(meta.TopPublishers, TopPublisher{
			ID:               p.ID,
			Name:             p.Name,
			PublicationCount: perPublisher[p.ID],
		})
	}
	sort.Slice(meta.TopPublishers, func(i, j int) bool {
		a, b := meta.TopPublishers[i], meta.TopPublishers[j]
		if a.PublicationCount != b.PublicationCount {
			return a.PublicationCount > b.PublicationCount
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	if len(meta.TopPublishers) > 5 {
		meta.TopPublishers = meta.TopPublishers[:5]
	}

	if meta.PublisherCount > 0 {
		meta.AvgPublicationsPerPub = float64(meta.PublicationCount) / float64(meta.PublisherCount)
	}
	if meta.PublicationCount > 0 {
		meta.VisibleRatio = float64(meta.VisiblePublicationCount) / float64(meta.PublicationCount)
	}
	return meta, nil
}
