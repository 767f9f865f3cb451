package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrTransient marks broker failures worth retrying: connection loss, channel
// closure, confirm timeouts. Callers leave the message queued and try again.
var ErrTransient = errors.New("transient broker error")

// ErrTerminal marks failures that will never succeed on retry: a nacked
// publish or an unroutable message.
var ErrTerminal = errors.New("terminal publish error")

const (
	publishRetries      = 3
	publishBaseBackoff  = 500 * time.Millisecond
	publishConfirmation = 5 * time.Second
)

// Publisher publishes envelopes to the catalog exchange with publisher
// confirms and persistent delivery. Safe for concurrent use; the underlying
// channel is re-established after connection failures.
type Publisher struct {
	url    string
	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher creates a publisher for the given broker URL. The connection
// is established lazily on first publish.
func NewPublisher(url string) *Publisher {
	return &Publisher{
		url:    url,
		logger: slog.Default().With("component", "event_publisher"),
		tracer: otel.Tracer("events"),
	}
}

func (p *Publisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("%w: dial: %v", ErrTransient, err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", ErrTransient, err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("%w: declare exchange: %v", ErrTransient, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: enable confirms: %v", ErrTransient, err)
	}
	p.channel = ch
	return ch, nil
}

func (p *Publisher) dropChannel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
}

// Publish sends one envelope to the given routing key, waiting for the broker
// confirm. Transient failures are retried with exponential backoff; a nack is
// terminal. Trace context is injected into the message headers.
func (p *Publisher) Publish(ctx context.Context, topic string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", ErrTerminal, err)
	}

	ctx, span := p.tracer.Start(ctx, "publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.event_type", env.EventType),
		),
	)
	defer span.End()

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	var lastErr error
	for attempt := 0; attempt <= publishRetries; attempt++ {
		if attempt > 0 {
			backoff := publishBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			}
		}

		lastErr = p.publishOnce(ctx, topic, headers, env, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrTerminal) {
			return lastErr
		}
		p.dropChannel()
		p.logger.Warn("publish attempt failed",
			"topic", topic, "event_id", env.EventID, "attempt", attempt, "error", lastErr)
	}
	return lastErr
}

func (p *Publisher) publishOnce(ctx context.Context, topic string, headers amqp.Table, env Envelope, body []byte) error {
	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, Exchange, topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.EventID,
			Type:          env.EventType,
			Timestamp:     env.Timestamp,
			CorrelationId: env.CorrelationID,
			Headers:       headers,
			Body:          body,
		})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrTransient, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, publishConfirmation)
	defer cancel()
	acked, err := confirm.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("%w: await confirm: %v", ErrTransient, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker nacked event %s", ErrTerminal, env.EventID)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
