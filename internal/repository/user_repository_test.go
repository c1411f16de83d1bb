package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "org_id", "email", "password_hash", "full_name", "active", "created_at", "updated_at"}).
		AddRow("u1", "org-1", "guru@sekolah.id", "hash", "Pak Guru", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1)")).
		WithArgs("Guru@sekolah.id").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Guru@sekolah.id")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Pak Guru", user.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		UserID:    "u1",
		Token:     "opaque",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.NotEmpty(t, token.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow(token.ID, "u1", "opaque", token.ExpiresAt, token.CreatedAt, false, nil, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token = $1")).
		WithArgs("opaque").
		WillReturnRows(rows)

	stored, err := repo.FindRefreshToken(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)
	assert.False(t, stored.Revoked)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WithArgs(token.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), token.ID, time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeAllUserTokens(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
