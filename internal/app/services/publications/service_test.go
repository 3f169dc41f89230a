package publications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/internal/app/storage/memory"
)

func timePtr(t time.Time) *time.Time { return &t }

func newTestService(t *testing.T) (*Service, string, string) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	owner, err := store.CreateUser(ctx, user.User{Email: "owner@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Example Press", Link: "https://example.com",
	})
	require.NoError(t, err)
	return NewService(store, nil), owner.ID, pub.ID
}

func TestCreateValidation(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	var fieldErrs validation.Errors

	_, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "tiny", Link: "https://example.com/tiny",
	})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "title", fieldErrs[0].Field)

	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "  pad  ", Link: "https://example.com/pad",
	})
	require.ErrorAs(t, err, &fieldErrs, "title length is checked after trimming")

	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "From the future", Link: "https://example.com/future",
		PublishedAt: timePtr(time.Now().Add(48 * time.Hour)),
	})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "published_at", fieldErrs[0].Field)
}

func TestCreateRejectsDuplicateLink(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "First item", Link: "https://example.com/item",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Second item", Link: "https://example.com/item",
	})
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "link", fieldErrs[0].Field)

	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Shouting item", Link: "https://EXAMPLE.com/ITEM",
	})
	require.ErrorAs(t, err, &fieldErrs, "links collide regardless of case")
	assert.Equal(t, "link", fieldErrs[0].Field)
}

func TestCreateWithoutPublishedAt(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Undated item", Link: "https://example.com/undated",
	})
	require.NoError(t, err)
	assert.Nil(t, created.PublishedAt, "missing publication date stays unset")
}

func TestBulkCreatePartialSuccess(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	items := []publication.Publication{
		{PublisherID: publisherID, Title: "Valid item", Link: "https://example.com/a"},
		{PublisherID: publisherID, Title: "bad", Link: "https://example.com/b"},
		{PublisherID: publisherID, Title: "Another valid", Link: "https://example.com/c"},
	}
	result, err := svc.BulkCreate(ctx, ownerID, items)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	assert.NoError(t, result.Items[0].Err)
	assert.Error(t, result.Items[1].Err)
	assert.NotEmpty(t, result.Items[2].Publication.ID)
}

func TestBulkUpdateAppliesFields(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "First item", Link: "https://example.com/a",
	})
	require.NoError(t, err)
	second, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Second item", Link: "https://example.com/b",
	})
	require.NoError(t, err)

	hidden := true
	result, err := svc.BulkUpdate(ctx, ownerID, []string{first.ID, second.ID, "missing"}, BulkFields{Hidden: &hidden})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	assert.True(t, result.Items[0].Publication.Hidden)
	assert.True(t, result.Items[1].Publication.Hidden)
	assert.ErrorIs(t, result.Items[2].Err, storage.ErrNotFound)

	got, err := svc.Get(ctx, ownerID, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Hidden)
	assert.Equal(t, "First item", got.Title, "unnamed fields keep their value")
}

func TestBulkUpdateRejectsOversizedBatch(t *testing.T) {
	svc, ownerID, _ := newTestService(t)

	ids := make([]string, MaxBulkWrite+1)
	_, err := svc.BulkUpdate(context.Background(), ownerID, ids, BulkFields{})
	assert.ErrorIs(t, err, ErrTooManyItems)
}

func TestBulkCaps(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	over := make([]publication.Publication, MaxBulkCreate+1)
	for i := range over {
		over[i] = publication.Publication{
			PublisherID: publisherID,
			Title:       fmt.Sprintf("Item number %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
		}
	}
	_, err := svc.BulkCreate(ctx, ownerID, over)
	assert.ErrorIs(t, err, ErrTooManyItems)

	ids := make([]string, MaxBulkWrite+1)
	_, err = svc.BulkDelete(ctx, ownerID, ids)
	assert.ErrorIs(t, err, ErrTooManyItems)
}

func TestBulkDeleteContinuesPastMissing(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "To delete", Link: "https://example.com/delete-me",
	})
	require.NoError(t, err)

	result, err := svc.BulkDelete(ctx, ownerID, []string{"no-such-id", created.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Error(t, result.Items[0].Err)
	assert.NoError(t, result.Items[1].Err)
}

func TestListVisibleExcludesHiddenAndHiddenPublisher(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	owner, err := store.CreateUser(ctx, user.User{Email: "owner@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	shown, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Shown Press", Link: "https://shown.example.com",
	})
	require.NoError(t, err)
	hiddenPub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: owner.ID, Name: "Hidden Press", Link: "https://hidden.example.com", Hidden: true,
	})
	require.NoError(t, err)
	svc := NewService(store, nil)

	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: shown.ID,
		Title: "Visible item", Link: "https://shown.example.com/a",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: shown.ID,
		Title: "Hidden item", Link: "https://shown.example.com/b", Hidden: true,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: owner.ID, PublisherID: hiddenPub.ID,
		Title: "Hidden by publisher", Link: "https://hidden.example.com/c",
	})
	require.NoError(t, err)

	list, total, err := svc.ListVisible(ctx, owner.ID, filter.Publication{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Visible item", list[0].Title)
}

func TestListRecentWindow(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Fresh item", Link: "https://example.com/fresh",
		PublishedAt: timePtr(time.Now().UTC().Add(-2 * 24 * time.Hour)),
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Stale item", Link: "https://example.com/stale",
		PublishedAt: timePtr(time.Now().UTC().Add(-20 * 24 * time.Hour)),
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Undated item", Link: "https://example.com/undated",
	})
	require.NoError(t, err)

	// Zero days falls back to the one-week default.
	list, total, err := svc.ListRecent(ctx, ownerID, 0, filter.Page{Limit: filter.DefaultLimit})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Fresh item", list[0].Title)

	_, total, err = svc.ListRecent(ctx, ownerID, 30, filter.Page{Limit: filter.DefaultLimit})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "undated items never count as recent")

	_, _, err = svc.ListRecent(ctx, ownerID, MaxRecentDays+1, filter.Page{})
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "days", fieldErrs[0].Field)
}

func TestSearchRequiresQuery(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Go concurrency patterns", Link: "https://example.com/go",
	})
	require.NoError(t, err)

	_, _, err = svc.Search(ctx, ownerID, filter.Publication{})
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "q", fieldErrs[0].Field)

	list, total, err := svc.Search(ctx, ownerID, filter.Publication{
		SearchTokens: filter.Tokenize("GO patterns"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	_, total, err = svc.Search(ctx, ownerID, filter.Publication{
		SearchTokens: filter.Tokenize("go rust"),
	})
	require.NoError(t, err)
	assert.Zero(t, total, "every token must match")
}

func TestGetByLink(t *testing.T) {
	svc, ownerID, publisherID := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: publisherID,
		Title: "Lookup item", Link: "https://example.com/lookup",
	})
	require.NoError(t, err)

	found, err := svc.GetByLink(ctx, ownerID, " https://example.com/lookup ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Example Press", found.PublisherName)
}
