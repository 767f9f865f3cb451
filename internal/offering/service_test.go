package offering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/outbox"
	"github.com/procat/backend/internal/saga"
)

type fakeStarter struct {
	calls      int
	definition string
	vars       camunda.Variables
	err        error
}

func (f *fakeStarter) StartProcess(ctx context.Context, definitionKey string, vars camunda.Variables) (string, error) {
	f.calls++
	f.definition = definitionKey
	f.vars = vars
	if f.err != nil {
		return "", f.err
	}
	return "instance-1", nil
}

func offeringRow(status string) *sqlmock.Rows {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "name", "description", "specification_ids", "price_ids", "sales_channels",
		"lifecycle_status", "version", "created_at", "updated_at",
	}).AddRow("o1", "Fiber 100", "", "{s1}", "{p1}", "{WEB}", status, 1, now, now)
}

func expectTransition(mock sqlmock.Sqlmock, fromStatus string) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM offerings WHERE id = \\$1 FOR UPDATE").
		WithArgs("o1").
		WillReturnRows(offeringRow(fromStatus))
	mock.ExpectExec("UPDATE offerings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func newOfferingService(t *testing.T, starter ProcessStarter) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	service := NewService(NewRepository(db), outbox.NewStore(db), starter)
	return service, mock, func() { db.Close() }
}

func TestPublishCommitsTransitionThenStartsSaga(t *testing.T) {
	starter := &fakeStarter{}
	service, mock, cleanup := newOfferingService(t, starter)
	defer cleanup()

	expectTransition(mock, StatusDraft)

	o, err := service.Publish(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPublishing, o.LifecycleStatus)

	require.Equal(t, 1, starter.calls)
	assert.Equal(t, saga.ProcessKey, starter.definition)
	assert.Equal(t, camunda.Variable{Value: "o1", Type: "String"}, starter.vars[saga.VarOfferingID])
	assert.Equal(t, "Json", starter.vars[saga.VarPricingIDs].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRevertsToDraftWhenSagaStartFails(t *testing.T) {
	starter := &fakeStarter{err: errors.New("engine unreachable")}
	service, mock, cleanup := newOfferingService(t, starter)
	defer cleanup()

	expectTransition(mock, StatusDraft)
	// The revert runs in a second transaction against the committed state.
	expectTransition(mock, StatusPublishing)

	_, err := service.Publish(context.Background(), "o1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRefusedOutsideDraft(t *testing.T) {
	starter := &fakeStarter{}
	service, mock, cleanup := newOfferingService(t, starter)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM offerings WHERE id = \\$1 FOR UPDATE").
		WithArgs("o1").
		WillReturnRows(offeringRow(StatusPublished))
	mock.ExpectRollback()

	_, err := service.Publish(context.Background(), "o1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindLifecycle, apperr.KindOf(err))
	assert.Zero(t, starter.calls)
}

func TestUpdateRefusedOutsideDraft(t *testing.T) {
	service, mock, cleanup := newOfferingService(t, &fakeStarter{})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM offerings WHERE id = \\$1 FOR UPDATE").
		WithArgs("o1").
		WillReturnRows(offeringRow(StatusPublishing))
	mock.ExpectRollback()

	_, err := service.Update(context.Background(), "o1", Input{
		Name:             "Fiber 100",
		SpecificationIDs: []string{"s1"},
		PriceIDs:         []string{"p1"},
		SalesChannels:    []string{"WEB"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindLifecycle, apperr.KindOf(err))
}

func TestConfirmPublicationEmitsPublished(t *testing.T) {
	service, mock, cleanup := newOfferingService(t, &fakeStarter{})
	defer cleanup()

	expectTransition(mock, StatusPublishing)

	require.NoError(t, service.ConfirmPublication(context.Background(), "o1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetireRequiresPublished(t *testing.T) {
	service, mock, cleanup := newOfferingService(t, &fakeStarter{})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM offerings WHERE id = \\$1 FOR UPDATE").
		WithArgs("o1").
		WillReturnRows(offeringRow(StatusDraft))
	mock.ExpectRollback()

	err := service.Retire(context.Background(), "o1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindLifecycle, apperr.KindOf(err))
}
