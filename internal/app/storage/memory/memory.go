// Package memory provides an in-memory storage.Store used for tests and for
// running the server without a database.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
)

// Store is a thread-safe map-backed implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	users        map[string]user.User
	publishers   map[string]publisher.Publisher
	publications map[string]publication.Publication
	stories      map[string]story.Story
	queries      []query.Record
	revoked      map[string]time.Time

	nextID int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]user.User),
		publishers:   make(map[string]publisher.Publisher),
		publications: make(map[string]publication.Publication),
		stories:      make(map[string]story.Story),
		revoked:      make(map[string]time.Time),
	}
}

func (s *Store) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// Users

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := user.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return user.User{}, storage.ErrConflict
		}
	}
	u.Email = email
	u.ID = s.newID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.Email = user.NormalizeEmail(u.Email)
	for id, existing := range s.users {
		if id != u.ID && existing.Email == u.Email {
			return user.User{}, storage.ErrConflict
		}
	}
	u.CreatedAt = current.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = user.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

// Publishers

func (s *Store) CreatePublisher(_ context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.publishers {
		if existing.OwnerID != p.OwnerID {
			continue
		}
		if strings.EqualFold(existing.Name, p.Name) || strings.EqualFold(existing.Link, p.Link) {
			return publisher.Publisher{}, storage.ErrConflict
		}
	}
	p.ID = s.newID()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.publishers[p.ID] = p
	return p, nil
}

func (s *Store) GetPublisher(_ context.Context, ownerID, id string) (publisher.Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.publishers[id]
	if !ok || p.OwnerID != ownerID {
		return publisher.Publisher{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPublisherByName(_ context.Context, ownerID, name string) (publisher.Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.publishers {
		if p.OwnerID == ownerID && strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return publisher.Publisher{}, storage.ErrNotFound
}

func (s *Store) ListPublishers(_ context.Context, ownerID string, f filter.Publisher) ([]publisher.Publisher, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []publisher.Publisher
	for _, p := range s.publishers {
		if p.OwnerID != ownerID {
			continue
		}
		if f.Match(p, s.countPublicationsLocked(p.ID)) {
			matched = append(matched, p)
		}
	}
	f.SortPublishers(matched)
	total := len(matched)
	start, end := f.Page.Apply(total)
	return matched[start:end], total, nil
}

func (s *Store) countPublicationsLocked(publisherID string) int {
	n := 0
	for _, pub := range s.publications {
		if pub.PublisherID == publisherID {
			n++
		}
	}
	return n
}

func (s *Store) UpdatePublisher(_ context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.publishers[p.ID]
	if !ok || current.OwnerID != p.OwnerID {
		return publisher.Publisher{}, storage.ErrNotFound
	}
	for id, existing := range s.publishers {
		if id == p.ID || existing.OwnerID != p.OwnerID {
			continue
		}
		if strings.EqualFold(existing.Name, p.Name) || strings.EqualFold(existing.Link, p.Link) {
			return publisher.Publisher{}, storage.ErrConflict
		}
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.publishers[p.ID] = p
	return p, nil
}

func (s *Store) DeletePublisher(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.publishers[id]
	if !ok || p.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.publishers, id)
	for pubID, pub := range s.publications {
		if pub.PublisherID == id {
			delete(s.publications, pubID)
			s.detachSourceLocked(pubID)
		}
	}
	return nil
}

func (s *Store) PublisherStats(_ context.Context, ownerID, id string) (publisher.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.publishers[id]
	if !ok || p.OwnerID != ownerID {
		return publisher.Stats{}, storage.ErrNotFound
	}
	var stats publisher.Stats
	for _, pub := range s.publications {
		if pub.PublisherID != id {
			continue
		}
		stats.PublicationCount++
		if !pub.Hidden {
			stats.VisiblePublicationCount++
		}
		if pub.PublishedAt != nil &&
			(stats.LatestPublicationAt == nil || pub.PublishedAt.After(*stats.LatestPublicationAt)) {
			at := *pub.PublishedAt
			stats.LatestPublicationAt = &at
		}
	}
	return stats, nil
}

// Publications

func (s *Store) CreatePublication(_ context.Context, p publication.Publication) (publication.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.publishers[p.PublisherID]
	if !ok || parent.OwnerID != p.OwnerID {
		return publication.Publication{}, storage.ErrNotFound
	}
	for _, existing := range s.publications {
		if existing.OwnerID == p.OwnerID && strings.EqualFold(existing.Link, p.Link) {
			return publication.Publication{}, storage.ErrConflict
		}
	}
	p.ID = s.newID()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.publications[p.ID] = p
	return s.annotateLocked(p), nil
}

func (s *Store) annotateLocked(p publication.Publication) publication.Publication {
	if parent, ok := s.publishers[p.PublisherID]; ok {
		p.PublisherName = parent.Name
		p.PublisherHidden = parent.Hidden
	}
	return p
}

func (s *Store) GetPublication(_ context.Context, ownerID, id string) (publication.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.publications[id]
	if !ok || p.OwnerID != ownerID {
		return publication.Publication{}, storage.ErrNotFound
	}
	return s.annotateLocked(p), nil
}

func (s *Store) GetPublicationByLink(_ context.Context, ownerID, link string) (publication.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.publications {
		if p.OwnerID == ownerID && strings.EqualFold(p.Link, link) {
			return s.annotateLocked(p), nil
		}
	}
	return publication.Publication{}, storage.ErrNotFound
}

func (s *Store) ListPublications(_ context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var matched []publication.Publication
	for _, p := range s.publications {
		if p.OwnerID != ownerID {
			continue
		}
		annotated := s.annotateLocked(p)
		if f.Match(annotated, now) {
			matched = append(matched, annotated)
		}
	}
	f.SortPublications(matched)
	total := len(matched)
	start, end := f.Page.Apply(total)
	return matched[start:end], total, nil
}

func (s *Store) UpdatePublication(_ context.Context, p publication.Publication) (publication.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.publications[p.ID]
	if !ok || current.OwnerID != p.OwnerID {
		return publication.Publication{}, storage.ErrNotFound
	}
	parent, ok := s.publishers[p.PublisherID]
	if !ok || parent.OwnerID != p.OwnerID {
		return publication.Publication{}, storage.ErrNotFound
	}
	for id, existing := range s.publications {
		if id != p.ID && existing.OwnerID == p.OwnerID && strings.EqualFold(existing.Link, p.Link) {
			return publication.Publication{}, storage.ErrConflict
		}
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.publications[p.ID] = p
	return s.annotateLocked(p), nil
}

func (s *Store) DeletePublication(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.publications[id]
	if !ok || p.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.publications, id)
	s.detachSourceLocked(id)
	return nil
}

func (s *Store) detachSourceLocked(publicationID string) {
	for id, st := range s.stories {
		for i, src := range st.SourceIDs {
			if src == publicationID {
				st.SourceIDs = append(st.SourceIDs[:i], st.SourceIDs[i+1:]...)
				s.stories[id] = st
				break
			}
		}
	}
}

// Stories

func (s *Store) CreateStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = s.newID()
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	st.IsCurrent = false
	st.SourceIDs = append([]string(nil), st.SourceIDs...)
	s.stories[st.ID] = st
	return cloneStory(st), nil
}

func cloneStory(st story.Story) story.Story {
	st.SourceIDs = append([]string(nil), st.SourceIDs...)
	return st
}

func (s *Store) GetStory(_ context.Context, ownerID, id string) (story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stories[id]
	if !ok || st.OwnerID != ownerID {
		return story.Story{}, storage.ErrNotFound
	}
	return cloneStory(st), nil
}

func (s *Store) GetCurrentStory(_ context.Context, ownerID string) (story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.stories {
		if st.OwnerID == ownerID && st.IsCurrent {
			return cloneStory(st), nil
		}
	}
	return story.Story{}, storage.ErrNotFound
}

func (s *Store) ListStories(_ context.Context, ownerID string) ([]story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []story.Story
	for _, st := range s.stories {
		if st.OwnerID == ownerID {
			out = append(out, cloneStory(st))
		}
	}
	sortStories(out)
	return out, nil
}

func sortStories(list []story.Story) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func (s *Store) UpdateStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.stories[st.ID]
	if !ok || current.OwnerID != st.OwnerID {
		return story.Story{}, storage.ErrNotFound
	}
	st.CreatedAt = current.CreatedAt
	st.IsCurrent = current.IsCurrent
	st.SourceIDs = append([]string(nil), current.SourceIDs...)
	st.UpdatedAt = time.Now().UTC()
	s.stories[st.ID] = st
	return cloneStory(st), nil
}

func (s *Store) DeleteStory(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	if !ok || st.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.stories, id)
	return nil
}

func (s *Store) SetCurrentStory(_ context.Context, ownerID, id string) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.stories[id]
	if !ok || target.OwnerID != ownerID {
		return story.Story{}, storage.ErrNotFound
	}
	for otherID, st := range s.stories {
		if st.OwnerID == ownerID && st.IsCurrent && otherID != id {
			st.IsCurrent = false
			s.stories[otherID] = st
		}
	}
	target.IsCurrent = true
	target.UpdatedAt = time.Now().UTC()
	s.stories[id] = target
	return cloneStory(target), nil
}

func (s *Store) AddStorySource(_ context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[storyID]
	if !ok || st.OwnerID != ownerID {
		return story.Story{}, storage.ErrNotFound
	}
	pub, ok := s.publications[publicationID]
	if !ok || pub.OwnerID != ownerID {
		return story.Story{}, storage.ErrNotFound
	}
	if !st.HasSource(publicationID) {
		st.SourceIDs = append(st.SourceIDs, publicationID)
		st.UpdatedAt = time.Now().UTC()
		s.stories[storyID] = st
	}
	return cloneStory(st), nil
}

func (s *Store) RemoveStorySource(_ context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[storyID]
	if !ok || st.OwnerID != ownerID {
		return story.Story{}, storage.ErrNotFound
	}
	for i, src := range st.SourceIDs {
		if src == publicationID {
			st.SourceIDs = append(st.SourceIDs[:i], st.SourceIDs[i+1:]...)
			st.UpdatedAt = time.Now().UTC()
			s.stories[storyID] = st
			break
		}
	}
	return cloneStory(st), nil
}

// Queries

func (s *Store) RecordQuery(_ context.Context, rec query.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.newID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.queries = append(s.queries, rec)
	return nil
}

func (s *Store) ListQueriesSince(_ context.Context, since time.Time) ([]query.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []query.Record
	for _, rec := range s.queries {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Tokens

func (s *Store) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiresAt
	return nil
}

func (s *Store) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok, nil
}
