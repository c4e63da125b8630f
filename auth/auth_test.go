package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/database/dbtest"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"github.com/krishkalaria12/snap-forge/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	users := repository.NewUserRepository(dbtest.New(t), logger.NewNop())
	tokens := NewTokenService("test-secret", "snap-forge-app", "snap-forge-app", time.Hour)
	return NewService(users, tokens, logger.NewNop())
}

var ada = RegisterInput{Email: "Ada@Example.com", Password: "correct horse", FirstName: "Ada", LastName: "Lovelace"}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, ada.Password, user.HashedPassword)

	got, tok, err := s.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	me, err := s.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newService(t)
	_, err := s.Register(context.Background(), ada)
	require.NoError(t, err)

	dup := ada
	dup.Email = "ADA@example.com"
	_, err = s.Register(context.Background(), dup)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newService(t)
	_, err := s.Register(context.Background(), ada)
	require.NoError(t, err)

	_, _, errWrong := s.Login(context.Background(), ada.Email, "nope")
	_, _, errUnknown := s.Login(context.Background(), "who@example.com", "nope")
	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(errWrong))
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	tokens := NewTokenService("secret", "iss", "aud", time.Hour)
	user := &models.User{ID: 42, Email: "a@b.c"}

	good, exp, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	id, err := tokens.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	other := NewTokenService("other-secret", "iss", "aud", time.Hour)
	forged, _, err := other.Issue(user)
	require.NoError(t, err)

	expired := NewTokenService("secret", "iss", "aud", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := expired.Issue(user)
	require.NoError(t, err)

	foreign := NewTokenService("secret", "iss", "other-app", time.Hour)
	misaddressed, _, err := foreign.Issue(user)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":          "",
		"garbage":        "not.a.jwt",
		"bad secret":     forged,
		"expired":        stale,
		"wrong audience": misaddressed,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(raw)
			require.Error(t, err)
			assert.Equal(t, "Could not validate credentials", err.Error())
		})
	}
}

func TestAuthenticateDeletedUser(t *testing.T) {
	s := newService(t)
	tok, _, err := s.Tokens().Issue(&models.User{ID: 999})
	require.NoError(t, err)

	_, err = s.Authenticate(context.Background(), tok)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}
