package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type fakeAuthRepo struct {
	usersByEmail map[string]models.User
	usersByID    map[string]models.User
	tokens       map[string]models.RefreshToken
	revoked      []string
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{
		usersByEmail: map[string]models.User{},
		usersByID:    map[string]models.User{},
		tokens:       map[string]models.RefreshToken{},
	}
}

func (f *fakeAuthRepo) addUser(user models.User) {
	f.usersByEmail[user.Email] = user
	f.usersByID[user.ID] = user
}

func (f *fakeAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (f *fakeAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (f *fakeAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = *token
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := f.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &stored, nil
}

func (f *fakeAuthRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	f.revoked = append(f.revoked, id)
	for key, stored := range f.tokens {
		if stored.ID == id {
			stored.Revoked = true
			f.tokens[key] = stored
		}
	}
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(_ context.Context, _ string) error {
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAuthRepo) {
	t.Helper()
	repo := newFakeAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.addUser(models.User{
		ID:           "u1",
		OrgID:        "org-1",
		Email:        "teacher@example.com",
		PasswordHash: string(hash),
		FullName:     "Pak Guru",
		Active:       true,
	})
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "gradebook-api",
	})
	return svc, repo
}

func TestLoginIssuesTokens(t *testing.T) {
	svc, repo := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "org-1", resp.User.OrgID)
	assert.Contains(t, repo.tokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrgID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmailLooksLikeBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, repo.revoked, "used refresh token must be revoked")

	// the old token no longer works
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.tokens["stale"] = models.RefreshToken{
		ID:        "rt-1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesOwnTokenOnly(t *testing.T) {
	svc, repo := newAuthFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "u1"))
	assert.NotEmpty(t, repo.revoked)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCurrentUser(t *testing.T) {
	svc, _ := newAuthFixture(t)
	info, err := svc.CurrentUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Pak Guru", info.FullName)

	_, err = svc.CurrentUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
