package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(memory.NewStore(), Config{Secret: "test-secret"}, nil)
	require.NoError(t, err)
	return svc
}

func registerTestUser(t *testing.T, svc *Service) user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), user.Registration{
		Email:     "alice@example.com",
		Password1: "correct horse",
		Password2: "correct horse",
		FirstName: "Alice",
	})
	require.NoError(t, err)
	return u
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var fieldErrs validation.Errors

	_, err := svc.Register(ctx, user.Registration{Email: "a@example.com"})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "detail", fieldErrs[0].Field)

	_, err = svc.Register(ctx, user.Registration{
		Email: "a@example.com", Password1: "long enough", Password2: "but different",
	})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "password2", fieldErrs[0].Field)

	_, err = svc.Register(ctx, user.Registration{
		Email: "a@example.com", Password1: "short", Password2: "short",
	})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "password1", fieldErrs[0].Field)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)

	_, err := svc.Register(context.Background(), user.Registration{
		Email:     "ALICE@example.com",
		Password1: "another pass",
		Password2: "another pass",
	})
	var fieldErrs validation.Errors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "email", fieldErrs[0].Field)
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestService(t)
	registered := registerTestUser(t, svc)
	ctx := context.Background()

	u, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	verified, err := svc.Verify(ctx, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, verified.ID)

	// Refresh tokens are not valid for verification.
	_, err = svc.Verify(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginWrongCredentials(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "alice@example.com", "wrong pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	renewed, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Refresh, renewed.Refresh)

	// The old refresh token is revoked by the rotation.
	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The new one still works.
	_, err = svc.Refresh(ctx, renewed.Refresh)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(DefaultAccessTTL + time.Minute) }
	_, err = svc.Verify(ctx, pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	svc.Logout(ctx, pair.Refresh)
	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A garbage token never makes logout fail.
	svc.Logout(ctx, "not-a-token")
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(t)
	registered := registerTestUser(t, svc)
	ctx := context.Background()

	last := "  Liddell  "
	updated, err := svc.UpdateProfile(ctx, registered.ID, nil, &last)
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.FirstName, "omitted fields are untouched")
	assert.Equal(t, "Liddell", updated.LastName)

	first := "Alicia"
	updated, err = svc.UpdateProfile(ctx, registered.ID, &first, nil)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.FirstName)
	assert.Equal(t, "Liddell", updated.LastName)

	_, err = svc.UpdateProfile(ctx, "no-such-user", &first, nil)
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	svc := newTestService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	other, err := NewService(memory.NewStore(), Config{Secret: "other-secret"}, nil)
	require.NoError(t, err)
	_, err = other.Verify(ctx, pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
