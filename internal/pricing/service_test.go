package pricing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/outbox"
)

func priceRow(locked bool, lockedBy string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var by interface{}
	if lockedBy != "" {
		by = lockedBy
	}
	return sqlmock.NewRows([]string{
		"id", "name", "value", "unit", "currency", "locked", "locked_by_saga",
		"version", "created_at", "updated_at",
	}).AddRow("p1", "Monthly", "49.99", "month", "USD", locked, by, 1, now, now)
}

func newLockService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	service := NewService(NewRepository(db), outbox.NewStore(db))
	return service, mock, func() { db.Close() }
}

func TestLockAcquiresAndEmitsEvent(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(priceRow(false, ""))
	mock.ExpectExec("UPDATE prices SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.Lock(context.Background(), "p1", "saga-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockIsIdempotentForSameSaga(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(priceRow(true, "saga-1"))
	mock.ExpectCommit()

	// No UPDATE and no outbox row: the lock is already held by this saga.
	require.NoError(t, service.Lock(context.Background(), "p1", "saga-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockIsExclusiveAcrossSagas(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(priceRow(true, "saga-1"))
	mock.ExpectRollback()

	err := service.Lock(context.Background(), "p1", "saga-2")
	require.Error(t, err)
	assert.Equal(t, apperr.KindLocked, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRefusedWhileLocked(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(priceRow(true, "saga-1"))
	mock.ExpectRollback()

	_, err := service.Update(context.Background(), "p1", Input{
		Name: "Monthly", Value: "59.99", Currency: "USD",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindLocked, apperr.KindOf(err))
}

func TestUnlockAlreadyUnlockedIsNoop(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(priceRow(false, ""))
	mock.ExpectCommit()

	require.NoError(t, service.Unlock(context.Background(), "p1", "saga-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidatesInput(t *testing.T) {
	service, _, cleanup := newLockService(t)
	defer cleanup()

	cases := []struct {
		name  string
		input Input
	}{
		{"missing name", Input{Value: "10", Currency: "USD"}},
		{"missing currency", Input{Name: "x", Value: "10"}},
		{"zero value", Input{Name: "x", Value: "0", Currency: "USD"}},
		{"negative value", Input{Name: "x", Value: "-1", Currency: "USD"}},
		{"non-numeric value", Input{Name: "x", Value: "abc", Currency: "USD"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestNotFoundMapsToKindNotFound(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := service.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
