package stories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, string) {
	t.Helper()
	store := memory.NewStore()
	owner, err := store.CreateUser(context.Background(), user.User{
		Email: "owner@example.com", PasswordHash: "x",
	})
	require.NoError(t, err)
	return NewService(store, nil), store, owner.ID
}

func createTestPublication(t *testing.T, store *memory.Store, ownerID string) publication.Publication {
	t.Helper()
	ctx := context.Background()
	pub, err := store.CreatePublisher(ctx, publisher.Publisher{
		OwnerID: ownerID, Name: "Story Press", Link: "https://story.example.com",
	})
	require.NoError(t, err)
	item, err := store.CreatePublication(ctx, publication.Publication{
		OwnerID: ownerID, PublisherID: pub.ID,
		Title: "Attached item", Link: "https://story.example.com/item",
	})
	require.NoError(t, err)
	return item
}

func TestSetCurrentMovesFlag(t *testing.T) {
	svc, _, ownerID := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "First"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Second"})
	require.NoError(t, err)
	assert.False(t, first.IsCurrent, "new stories start non-current")

	_, err = svc.SetCurrent(ctx, ownerID, first.ID, true)
	require.NoError(t, err)
	updated, err := svc.SetCurrent(ctx, ownerID, second.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsCurrent)

	got, err := svc.Get(ctx, ownerID, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent)

	current, err := svc.Current(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestCreateWithCurrentClearsPrevious(t *testing.T) {
	svc, _, ownerID := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "First", IsCurrent: true})
	require.NoError(t, err)
	assert.True(t, first.IsCurrent)

	second, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Second", IsCurrent: true})
	require.NoError(t, err)
	assert.True(t, second.IsCurrent)

	got, err := svc.Get(ctx, ownerID, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent, "only one story stays current")
}

func TestUpdateCurrentFlag(t *testing.T) {
	svc, _, ownerID := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "First", IsCurrent: true})
	require.NoError(t, err)
	second, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Second"})
	require.NoError(t, err)

	// Updating without touching the flag leaves currency alone.
	second.Title = "Second renamed"
	updated, err := svc.Update(ctx, second, nil)
	require.NoError(t, err)
	assert.False(t, updated.IsCurrent)

	setCurrent := true
	updated, err = svc.Update(ctx, second, &setCurrent)
	require.NoError(t, err)
	assert.True(t, updated.IsCurrent)

	got, err := svc.Get(ctx, ownerID, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent)

	unset := false
	renamed := updated
	renamed.Title = "Second renamed again"
	_, err = svc.Update(ctx, renamed, &unset)
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "is_current", fieldErrs[0].Field)

	// The rejected request must not have written anything.
	got, err = svc.Get(ctx, ownerID, updated.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second renamed", got.Title)
	assert.True(t, got.IsCurrent)
}

func TestSetCurrentRejectsUnset(t *testing.T) {
	svc, _, ownerID := newTestService(t)
	ctx := context.Background()

	st, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Only"})
	require.NoError(t, err)
	_, err = svc.SetCurrent(ctx, ownerID, st.ID, true)
	require.NoError(t, err)

	_, err = svc.SetCurrent(ctx, ownerID, st.ID, false)
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "is_current", fieldErrs[0].Field)

	current, err := svc.Current(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, current.ID, "rejected unset leaves the flag alone")
}

func TestCurrentIsPerUser(t *testing.T) {
	svc, store, ownerID := newTestService(t)
	ctx := context.Background()

	other, err := store.CreateUser(ctx, user.User{Email: "other@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	mine, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Mine"})
	require.NoError(t, err)
	theirs, err := svc.Create(ctx, story.Story{OwnerID: other.ID, Title: "Theirs"})
	require.NoError(t, err)

	_, err = svc.SetCurrent(ctx, ownerID, mine.ID, true)
	require.NoError(t, err)
	_, err = svc.SetCurrent(ctx, other.ID, theirs.ID, true)
	require.NoError(t, err)

	current, err := svc.Current(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, current.ID)

	_, err = svc.SetCurrent(ctx, ownerID, theirs.ID, true)
	assert.ErrorIs(t, err, storage.ErrNotFound, "cannot take over another user's story")
}

func TestSourceAttachmentIsIdempotent(t *testing.T) {
	svc, store, ownerID := newTestService(t)
	ctx := context.Background()

	item := createTestPublication(t, store, ownerID)
	st, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Sourced"})
	require.NoError(t, err)

	st, err = svc.AddSource(ctx, ownerID, st.ID, item.ID)
	require.NoError(t, err)
	st, err = svc.AddSource(ctx, ownerID, st.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, st.SourceIDs)

	st, err = svc.RemoveSource(ctx, ownerID, st.ID, item.ID)
	require.NoError(t, err)
	assert.Empty(t, st.SourceIDs)

	st, err = svc.RemoveSource(ctx, ownerID, st.ID, item.ID)
	require.NoError(t, err, "removing an absent source is a no-op")
	assert.Empty(t, st.SourceIDs)
}

func TestAddSourceRequiresOwnedPublication(t *testing.T) {
	svc, store, ownerID := newTestService(t)
	ctx := context.Background()

	other, err := store.CreateUser(ctx, user.User{Email: "other@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	item := createTestPublication(t, store, other.ID)

	st, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Sourced"})
	require.NoError(t, err)

	_, err = svc.AddSource(ctx, ownerID, st.ID, item.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeletingPublicationDetachesIt(t *testing.T) {
	svc, store, ownerID := newTestService(t)
	ctx := context.Background()

	item := createTestPublication(t, store, ownerID)
	st, err := svc.Create(ctx, story.Story{OwnerID: ownerID, Title: "Sourced"})
	require.NoError(t, err)
	_, err = svc.AddSource(ctx, ownerID, st.ID, item.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeletePublication(ctx, ownerID, item.ID))

	got, err := svc.Get(ctx, ownerID, st.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SourceIDs)
}
