package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/procat/backend/internal/apperr"
)

func userRow(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at"}).
		AddRow("u1", "alice", string(hash), "admin", time.Now().UTC())
}

func TestAuthenticateSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, username, password_hash, role, created_at FROM users").
		WithArgs("alice").
		WillReturnRows(userRow(t, "s3cret"))

	u, err := NewRepository(db).Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, username, password_hash, role, created_at FROM users").
		WithArgs("alice").
		WillReturnRows(userRow(t, "s3cret"))

	_, err = NewRepository(db).Authenticate(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, username, password_hash, role, created_at FROM users").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err = NewRepository(db).Authenticate(context.Background(), "ghost", "whatever")
	require.Error(t, err)
	// Unknown user and wrong password are indistinguishable to the caller.
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Equal(t, "invalid credentials", apperr.MessageOf(err))
}

func TestSeedSkipsExistingAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// admin exists, user does not.
	mock.ExpectQuery("SELECT id, username, password_hash, role, created_at FROM users").
		WithArgs("admin").
		WillReturnRows(userRow(t, "adminpw"))
	mock.ExpectQuery("SELECT id, username, password_hash, role, created_at FROM users").
		WithArgs("user").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "user", sqlmock.AnyArg(), "user", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRepository(db).Seed(context.Background(), "adminpw", "userpw"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
