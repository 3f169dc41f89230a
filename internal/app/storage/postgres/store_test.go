package postgres

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
)

// openTestStore connects to the database named by TEST_POSTGRES_DSN and
// skips the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func timePtr(t time.Time) *time.Time { return &t }

func createTestUser(t *testing.T, store *Store) user.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), user.User{
		Email:        "pg-" + time.Now().Format("150405.000000000") + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

func TestPostgresPublisherLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	created, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID,
		Name:    "Example Press",
		Link:    "https://example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID,
		Name:    "EXAMPLE press",
		Link:    "https://other.example.com",
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "name uniqueness is case-insensitive")

	byName, err := store.GetPublisherByName(ctx, owner.ID, "example PRESS")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	created.Hidden = true
	updated, err := store.UpdatePublisher(ctx, created)
	require.NoError(t, err)
	assert.True(t, updated.Hidden)

	require.NoError(t, store.DeletePublisher(ctx, owner.ID, created.ID))
	_, err = store.GetPublisher(ctx, owner.ID, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresPublicationFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Filter Press", Link: "https://filter.example.com",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Weekly Go Digest", Link: "https://news.example.com/go-digest",
		PublishedAt: timePtr(now.AddDate(0, 0, -1)),
	})
	require.NoError(t, err)
	_, err = store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Old Rust Notes", Link: "https://archive.example.com/rust",
		PublishedAt: timePtr(now.AddDate(0, 0, -30)),
	})
	require.NoError(t, err)

	list, total, err := store.ListPublications(ctx, owner.ID,
		filter.ParsePublication(url.Values{"search": {"go digest"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Weekly Go Digest", list[0].Title)
	assert.Equal(t, "Filter Press", list[0].PublisherName)

	_, total, err = store.ListPublications(ctx, owner.ID,
		filter.ParsePublication(url.Values{"days_old": {"7"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = store.ListPublications(ctx, owner.ID,
		filter.ParsePublication(url.Values{"link_domain": {"news.example.com"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestPostgresPublisherLinkUniqueness(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	_, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Link Press", Link: "https://link.example.com",
	})
	require.NoError(t, err)

	_, err = store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Other Name", Link: "https://LINK.example.com",
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "website uniqueness is case-insensitive")
}

func TestPostgresPublicationLinkUniqueness(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Dup Press", Link: "https://dup.example.com",
	})
	require.NoError(t, err)

	_, err = store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Original item", Link: "https://dup.example.com/item",
	})
	require.NoError(t, err)

	_, err = store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Copied item", Link: "https://DUP.example.com/ITEM",
	})
	assert.ErrorIs(t, err, storage.ErrConflict, "link uniqueness is case-insensitive")

	byLink, err := store.GetPublicationByLink(ctx, owner.ID, "https://dup.EXAMPLE.com/item")
	require.NoError(t, err)
	assert.Equal(t, "Original item", byLink.Title)
}

func TestPostgresNullPublishedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Null Press", Link: "https://null.example.com",
	})
	require.NoError(t, err)

	undated, err := store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Undated item", Link: "https://null.example.com/undated",
	})
	require.NoError(t, err)
	assert.Nil(t, undated.PublishedAt)

	_, err = store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Dated item", Link: "https://null.example.com/dated",
		PublishedAt: timePtr(time.Now().UTC().Add(-time.Hour)),
	})
	require.NoError(t, err)

	list, total, err := store.ListPublications(ctx, owner.ID, filter.Publication{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Dated item", list[0].Title)
	assert.Equal(t, "Undated item", list[1].Title, "undated items sort after dated ones")
	assert.Nil(t, list[1].PublishedAt)

	_, total, err = store.ListPublications(ctx, owner.ID,
		filter.ParsePublication(url.Values{"days_old": {"7"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, total, "date windows exclude undated items")
}

func TestPostgresQueryLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	require.NoError(t, store.RecordQuery(ctx, query.Record{
		UserID:   owner.ID,
		Referrer: "/api/publications",
		Term:     "go digest",
	}))

	records, err := store.ListQueriesSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	var found bool
	for _, rec := range records {
		if rec.UserID == owner.ID {
			found = true
			assert.Equal(t, "go digest", rec.Term)
			assert.Equal(t, "/api/publications", rec.Referrer)
			assert.False(t, rec.CreatedAt.IsZero())
		}
	}
	assert.True(t, found)
}

func TestPostgresUpdateUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	owner.FirstName = "Pat"
	owner.Staff = true
	updated, err := store.UpdateUser(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Pat", updated.FirstName)
	assert.True(t, updated.Staff)

	owner.ID = "00000000-0000-0000-0000-000000000000"
	_, err = store.UpdateUser(ctx, owner)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresCurrentStoryIsExclusive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	first, err := store.CreateStory(ctx, story.Story{OwnerID: owner.ID, Title: "First"})
	require.NoError(t, err)
	second, err := store.CreateStory(ctx, story.Story{OwnerID: owner.ID, Title: "Second"})
	require.NoError(t, err)

	_, err = store.SetCurrentStory(ctx, owner.ID, first.ID)
	require.NoError(t, err)
	_, err = store.SetCurrentStory(ctx, owner.ID, second.ID)
	require.NoError(t, err)

	current, err := store.GetCurrentStory(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	got, err := store.GetStory(ctx, owner.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent)
}

func TestPostgresStorySourcesIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store)

	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Source Press", Link: "https://source.example.com",
	})
	require.NoError(t, err)
	item, err := store.CreatePublication(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: pub.ID,
		Title: "Attached Item", Link: "https://source.example.com/item",
	})
	require.NoError(t, err)
	st, err := store.CreateStory(ctx, story.Story{OwnerID: owner.ID, Title: "Sourced"})
	require.NoError(t, err)

	st, err = store.AddStorySource(ctx, owner.ID, st.ID, item.ID)
	require.NoError(t, err)
	st, err = store.AddStorySource(ctx, owner.ID, st.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, st.SourceIDs)

	st, err = store.RemoveStorySource(ctx, owner.ID, st.ID, item.ID)
	require.NoError(t, err)
	assert.Empty(t, st.SourceIDs)
}

func TestPostgresTokenRevocation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	jti := "test-jti-" + time.Now().Format("150405.000000000")
	revoked, err := store.IsTokenRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.RevokeToken(ctx, jti, time.Now().Add(time.Hour)))
	require.NoError(t, store.RevokeToken(ctx, jti, time.Now().Add(time.Hour)))

	revoked, err = store.IsTokenRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}
