// Package storage defines the persistence interfaces shared by the in-memory
// and postgres implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/filter"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned
	// by the requesting user.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a uniqueness constraint would be
	// violated.
	ErrConflict = errors.New("storage: conflict")
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
}

// PublisherStore persists publishers. All reads and writes are scoped to an
// owner; a record belonging to another user behaves as absent.
type PublisherStore interface {
	CreatePublisher(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error)
	GetPublisher(ctx context.Context, ownerID, id string) (publisher.Publisher, error)
	GetPublisherByName(ctx context.Context, ownerID, name string) (publisher.Publisher, error)
	ListPublishers(ctx context.Context, ownerID string, f filter.Publisher) ([]publisher.Publisher, int, error)
	UpdatePublisher(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error)
	DeletePublisher(ctx context.Context, ownerID, id string) error
	PublisherStats(ctx context.Context, ownerID, id string) (publisher.Stats, error)
}

// PublicationStore persists publications. List results carry the publisher
// name and hidden flag as annotations.
type PublicationStore interface {
	CreatePublication(ctx context.Context, p publication.Publication) (publication.Publication, error)
	GetPublication(ctx context.Context, ownerID, id string) (publication.Publication, error)
	GetPublicationByLink(ctx context.Context, ownerID, link string) (publication.Publication, error)
	ListPublications(ctx context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error)
	UpdatePublication(ctx context.Context, p publication.Publication) (publication.Publication, error)
	DeletePublication(ctx context.Context, ownerID, id string) error
}

// StoryStore persists stories and their publication links.
type StoryStore interface {
	CreateStory(ctx context.Context, s story.Story) (story.Story, error)
	GetStory(ctx context.Context, ownerID, id string) (story.Story, error)
	GetCurrentStory(ctx context.Context, ownerID string) (story.Story, error)
	ListStories(ctx context.Context, ownerID string) ([]story.Story, error)
	UpdateStory(ctx context.Context, s story.Story) (story.Story, error)
	DeleteStory(ctx context.Context, ownerID, id string) error

	// SetCurrentStory clears any existing current flag for the owner and
	// sets it on the given story in one atomic step.
	SetCurrentStory(ctx context.Context, ownerID, id string) (story.Story, error)
	// AddStorySource and RemoveStorySource are idempotent.
	AddStorySource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error)
	RemoveStorySource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error)
}

// QueryStore persists captured search terms. Listing spans every user; the
// report endpoint that reads it is staff only.
type QueryStore interface {
	RecordQuery(ctx context.Context, rec query.Record) error
	ListQueriesSince(ctx context.Context, since time.Time) ([]query.Record, error)
}

// TokenStore tracks revoked refresh tokens by token ID.
type TokenStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Store aggregates every persistence concern.
type Store interface {
	UserStore
	PublisherStore
	PublicationStore
	StoryStore
	QueryStore
	TokenStore
}
