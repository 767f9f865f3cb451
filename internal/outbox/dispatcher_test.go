package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/events"
)

type fakePublisher struct {
	published []string // topics in publish order
	eventIDs  []string
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, env events.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, topic)
	f.eventIDs = append(f.eventIDs, env.EventID)
	return nil
}

func pendingRows(t *testing.T, envs ...events.Envelope) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{"id", "topic", "payload", "status", "created_at"})
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i, env := range envs {
		payload, err := json.Marshal(env)
		require.NoError(t, err)
		rows.AddRow(fmt.Sprintf("row-%d", i), "product.offering.events", payload,
			StatusPending, base.Add(time.Duration(i)*time.Second))
	}
	return rows
}

func newEnvelope(t *testing.T, eventType string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, 1, "", map[string]string{"id": "o1"})
	require.NoError(t, err)
	return env
}

func TestDrainPublishesFIFOAndMarksSent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	first := newEnvelope(t, events.OfferingCreated)
	second := newEnvelope(t, events.OfferingUpdated)

	mock.ExpectQuery("SELECT id, topic, payload, status, created_at FROM outbox").
		WithArgs(StatusPending).
		WillReturnRows(pendingRows(t, first, second))
	mock.ExpectExec("UPDATE outbox SET status").
		WithArgs(StatusSent, sqlmock.AnyArg(), "row-0").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox SET status").
		WithArgs(StatusSent, sqlmock.AnyArg(), "row-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{}
	dispatcher := NewDispatcher(NewStore(db), pub, nil, nil)

	require.NoError(t, dispatcher.Drain(context.Background()))
	assert.Equal(t, []string{first.EventID, second.EventID}, pub.eventIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainTransientErrorLeavesRowsPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, topic, payload, status, created_at FROM outbox").
		WithArgs(StatusPending).
		WillReturnRows(pendingRows(t, newEnvelope(t, events.OfferingCreated)))

	pub := &fakePublisher{err: fmt.Errorf("%w: broker gone", events.ErrTransient)}
	dispatcher := NewDispatcher(NewStore(db), pub, nil, nil)

	err = dispatcher.Drain(context.Background())
	require.Error(t, err)
	// No UPDATE was expected: the row must stay PENDING.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainTerminalErrorMarksFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, topic, payload, status, created_at FROM outbox").
		WithArgs(StatusPending).
		WillReturnRows(pendingRows(t, newEnvelope(t, events.OfferingCreated)))
	mock.ExpectExec("UPDATE outbox SET status").
		WithArgs(StatusFailed, sqlmock.AnyArg(), sqlmock.AnyArg(), "row-0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{err: fmt.Errorf("%w: nacked", events.ErrTerminal)}
	dispatcher := NewDispatcher(NewStore(db), pub, nil, nil)

	require.NoError(t, dispatcher.Drain(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainCorruptPayloadMarksFailedAndContinues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	good := newEnvelope(t, events.OfferingCreated)
	goodPayload, err := json.Marshal(good)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "topic", "payload", "status", "created_at"}).
		AddRow("row-bad", "product.offering.events", []byte("{corrupt"), StatusPending,
			time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)).
		AddRow("row-good", "product.offering.events", goodPayload, StatusPending,
			time.Date(2026, 2, 1, 10, 0, 1, 0, time.UTC))

	mock.ExpectQuery("SELECT id, topic, payload, status, created_at FROM outbox").
		WithArgs(StatusPending).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox SET status").
		WithArgs(StatusFailed, sqlmock.AnyArg(), sqlmock.AnyArg(), "row-bad").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox SET status").
		WithArgs(StatusSent, sqlmock.AnyArg(), "row-good").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{}
	dispatcher := NewDispatcher(NewStore(db), pub, nil, nil)

	require.NoError(t, dispatcher.Drain(context.Background()))
	assert.Equal(t, []string{good.EventID}, pub.eventIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddInsertsPendingRowInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(sqlmock.AnyArg(), "commercial.pricing.events", sqlmock.AnyArg(), StatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	store := NewStore(db)
	env := newEnvelope(t, events.PriceCreated)
	require.NoError(t, store.Add(tx, "commercial.pricing.events", env))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
