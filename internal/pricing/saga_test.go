package pricing

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/saga"
)

func lockTask(ids string) camunda.Task {
	return camunda.Task{
		ID:                "t1",
		TopicName:         saga.TopicLockPrices,
		ProcessInstanceID: "proc-1",
		Variables: camunda.Variables{
			saga.VarOfferingID: {Value: "o1", Type: "String"},
			saga.VarPricingIDs: {Value: ids, Type: "Json"},
		},
	}
}

func TestSagaLockPricesLocksAll(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	for range []int{0, 1} {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(priceRow(false, ""))
		mock.ExpectExec("UPDATE prices SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO outbox").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	out, err := NewSagaHandlers(service).LockPrices(context.Background(), lockTask(`["p1","p2"]`))
	require.NoError(t, err)
	assert.Equal(t, true, out["pricesLocked"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSagaLockPricesRaisesBpmnErrorWhenHeldElsewhere(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(priceRow(true, "other-saga"))
	mock.ExpectRollback()

	_, err := NewSagaHandlers(service).LockPrices(context.Background(), lockTask(`["p1"]`))
	require.Error(t, err)

	var bpmnErr *camunda.BpmnError
	require.ErrorAs(t, err, &bpmnErr)
	assert.Equal(t, saga.ErrLockPricesFailed, bpmnErr.Code)
}

func TestSagaUnlockPricesContinuesPastFailures(t *testing.T) {
	service, mock, cleanup := newLockService(t)
	defer cleanup()

	// First price: transaction fails to begin. Second price: unlocks fine.
	mock.ExpectBegin().WillReturnError(assert.AnError)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM prices WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(priceRow(true, "proc-1"))
	mock.ExpectExec("UPDATE prices SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	task := camunda.Task{
		ID:                "t2",
		TopicName:         saga.TopicUnlockPrices,
		ProcessInstanceID: "proc-1",
		Variables: camunda.Variables{
			saga.VarPricingIDs: {Value: `["p1","p2"]`, Type: "Json"},
		},
	}
	out, err := NewSagaHandlers(service).UnlockPrices(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, true, out["pricesUnlocked"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
