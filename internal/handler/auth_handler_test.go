package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
)

type fakeAuthStore struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	tokens       map[string]*models.RefreshToken
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		usersByEmail: map[string]*models.User{},
		usersByID:    map[string]*models.User{},
		tokens:       map[string]*models.RefreshToken{},
	}
}

func (f *fakeAuthStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeAuthStore) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeAuthStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = "tok-" + token.Token[:6]
	}
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeAuthStore) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := f.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (f *fakeAuthStore) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, stored := range f.tokens {
		if stored.ID == id {
			stored.Revoked = true
			stored.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeAuthStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	now := time.Now()
	for _, stored := range f.tokens {
		if stored.UserID == userID {
			stored.Revoked = true
			stored.RevokedAt = &now
		}
	}
	return nil
}

func newAuthHandlerFixture(t *testing.T) (*AuthHandler, *fakeAuthStore) {
	t.Helper()
	store := newFakeAuthStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "u1",
		OrgID:        "org-1",
		Email:        "guru@sekolah.id",
		PasswordHash: string(hash),
		FullName:     "Pak Guru",
		Active:       true,
	}
	store.usersByEmail[user.Email] = user
	store.usersByID[user.ID] = user

	svc := service.NewAuthService(store, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "gradebook-test",
	})
	return NewAuthHandler(svc), store
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store := newAuthHandlerFixture(t)

	body := strings.NewReader(`{"email":"guru@sekolah.id","password":"rahasia123"}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(envelope.Data, &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Pak Guru", resp.User.FullName)
	assert.Len(t, store.tokens, 1)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandlerFixture(t)

	body := strings.NewReader(`{"email":"guru@sekolah.id","password":"salah"}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandlerFixture(t)

	body := strings.NewReader(`{"email":`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandlerFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", OrgID: "org-1"})

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope handlerEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	var info models.UserInfo
	require.NoError(t, json.Unmarshal(envelope.Data, &info))
	assert.Equal(t, "guru@sekolah.id", info.Email)
}

func TestAuthHandlerLogoutRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAuthHandlerFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"x"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Logout(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
