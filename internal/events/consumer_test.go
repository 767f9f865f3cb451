package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error { a.acks++; return nil }

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func consumerFixture(t *testing.T) (*Consumer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return NewConsumer("amqp://unused", "store", "offering.published"), recorder
}

func delivery(t *testing.T, ack *fakeAcknowledger) amqp.Delivery {
	t.Helper()
	env, err := NewEnvelope(OfferingPublished, 1, "corr-1", map[string]string{"id": "o1"})
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: amqp.Table{}}
}

func TestDispatchAcksOnSuccess(t *testing.T) {
	consumer, recorder := consumerFixture(t)
	ack := &fakeAcknowledger{}

	consumer.dispatch(context.Background(), delivery(t, ack), func(ctx context.Context, env Envelope) error {
		return nil
	})

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestDispatchRequeuesAndMarksSpanOnHandlerFailure(t *testing.T) {
	consumer, recorder := consumerFixture(t)
	ack := &fakeAcknowledger{}

	consumer.dispatch(context.Background(), delivery(t, ack), func(ctx context.Context, env Envelope) error {
		return errors.New("downstream unavailable")
	})

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestDispatchDropsUnprocessableWithErrorSpan(t *testing.T) {
	consumer, recorder := consumerFixture(t)
	ack := &fakeAcknowledger{}

	consumer.dispatch(context.Background(), delivery(t, ack), func(ctx context.Context, env Envelope) error {
		return fmt.Errorf("%w: bad payload", ErrUnprocessable)
	})

	// Poison pills are acked, never requeued, but the span still errors.
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestDispatchDropsMalformedBody(t *testing.T) {
	consumer, recorder := consumerFixture(t)
	ack := &fakeAcknowledger{}

	consumer.dispatch(context.Background(), amqp.Delivery{
		Acknowledger: ack, Body: []byte("{not json"), Headers: amqp.Table{},
	}, func(ctx context.Context, env Envelope) error {
		t.Fatal("handler must not run for malformed bodies")
		return nil
	})

	assert.Equal(t, 1, ack.acks)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
