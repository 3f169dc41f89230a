// Package stories implements story curation, including the single current
// story per user.
package stories

import (
	"context"
	"strings"

	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/pkg/logger"
)

// Service manages stories for their owners.
type Service struct {
	store storage.Store
	log   *logger.Logger
}

// NewService builds a Service.
func NewService(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("stories")
	}
	return &Service{store: store, log: log}
}

// Create stores a new story. A story created with the current flag set goes
// through the same clear-then-set step as SetCurrent so the one-current
// invariant holds.
func (s *Service) Create(ctx context.Context, st story.Story) (story.Story, error) {
	st.Title = strings.TrimSpace(st.Title)
	if err := st.Validate(); err != nil {
		return story.Story{}, err
	}
	wantCurrent := st.IsCurrent
	created, err := s.store.CreateStory(ctx, st)
	if err != nil {
		return story.Story{}, err
	}
	if wantCurrent {
		created, err = s.store.SetCurrentStory(ctx, created.OwnerID, created.ID)
		if err != nil {
			return story.Story{}, err
		}
	}
	s.log.WithField("story_id", created.ID).Info("Story created")
	return created, nil
}

// Get returns a story owned by the user.
func (s *Service) Get(ctx context.Context, ownerID, id string) (story.Story, error) {
	return s.store.GetStory(ctx, ownerID, id)
}

// Current returns the owner's current story, or storage.ErrNotFound when
// none is set.
func (s *Service) Current(ctx context.Context, ownerID string) (story.Story, error) {
	return s.store.GetCurrentStory(ctx, ownerID)
}

// List returns all of the owner's stories, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]story.Story, error) {
	return s.store.ListStories(ctx, ownerID)
}

// Update replaces the writable fields of a story. A nil current leaves the
// flag alone; true routes through the clear-then-set step; false on the
// current story is rejected, the same as SetCurrent.
func (s *Service) Update(ctx context.Context, st story.Story, current *bool) (story.Story, error) {
	st.Title = strings.TrimSpace(st.Title)
	if err := st.Validate(); err != nil {
		return story.Story{}, err
	}
	existing, err := s.store.GetStory(ctx, st.OwnerID, st.ID)
	if err != nil {
		return story.Story{}, err
	}
	// Reject an unset of the current story before touching any field, so a
	// failed request leaves the story exactly as it was.
	if current != nil && !*current && existing.IsCurrent {
		return story.Story{}, validation.Errors{}.Add("is_current", "cannot unset the current story; set another story as current instead")
	}
	updated, err := s.store.UpdateStory(ctx, st)
	if err != nil {
		return story.Story{}, err
	}
	if current == nil || !*current {
		return updated, nil
	}
	return s.store.SetCurrentStory(ctx, st.OwnerID, st.ID)
}

// Delete removes a story. Its publications are untouched.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeleteStory(ctx, ownerID, id)
}

// SetCurrent marks a story as the owner's current one, clearing the flag
// from any other story in the same step. Clearing without a replacement is
// rejected; pick another story instead.
func (s *Service) SetCurrent(ctx context.Context, ownerID, id string, current bool) (story.Story, error) {
	if !current {
		return story.Story{}, validation.Errors{}.Add("is_current", "cannot unset the current story; set another story as current instead")
	}
	updated, err := s.store.SetCurrentStory(ctx, ownerID, id)
	if err != nil {
		return story.Story{}, err
	}
	s.log.WithField("story_id", id).Info("Current story changed")
	return updated, nil
}

// AddSource attaches a publication to a story. Attaching an already attached
// publication is a no-op.
func (s *Service) AddSource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	if publicationID == "" {
		return story.Story{}, validation.Errors{}.Add("publication", "publication is required")
	}
	return s.store.AddStorySource(ctx, ownerID, storyID, publicationID)
}

// RemoveSource detaches a publication from a story. Detaching a publication
// that is not attached is a no-op.
func (s *Service) RemoveSource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	if publicationID == "" {
		return story.Story{}, validation.Errors{}.Add("publication", "publication is required")
	}
	return s.store.RemoveStorySource(ctx, ownerID, storyID, publicationID)
}
