package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one envelope. Returning nil acks the message. Returning
// an error wrapping ErrUnprocessable acks and drops it as a poison pill; any
// other error nacks with requeue so the delivery is retried.
type Handler func(ctx context.Context, env Envelope) error

// ErrUnprocessable marks deliveries that will never succeed, typically
// malformed payloads. They are acked and logged instead of requeued forever.
var ErrUnprocessable = errors.New("unprocessable delivery")

const consumerReconnectDelay = 2 * time.Second

// Consumer binds a durable queue to one routing key on the catalog exchange
// and delivers envelopes to a handler with manual acknowledgements.
type Consumer struct {
	url     string
	service string
	topic   string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewConsumer creates a consumer for one service and routing key. The queue
// name follows the <service>.<topic>.queue convention so each service gets
// its own durable copy of the stream.
func NewConsumer(url, service, topic string) *Consumer {
	return &Consumer{
		url:     url,
		service: service,
		topic:   topic,
		logger:  slog.Default().With("component", "event_consumer", "topic", topic),
		tracer:  otel.Tracer("events"),
	}
}

// QueueName returns the durable queue this consumer reads from.
func (c *Consumer) QueueName() string {
	return fmt.Sprintf("%s.%s.queue", c.service, c.topic)
}

// Run consumes until ctx is cancelled, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer disconnected, reconnecting", "error", err)
		select {
		case <-time.After(consumerReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, handler Handler) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	queue := c.QueueName()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, c.topic, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}
	c.logger.Info("consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, d, handler)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handler Handler) {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
	msgCtx, span := c.tracer.Start(msgCtx, "consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", c.topic)),
	)
	defer span.End()

	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed delivery")
		c.logger.Error("dropping malformed delivery", "error", err)
		d.Ack(false)
		return
	}

	if err := handler(msgCtx, env); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrUnprocessable) {
			span.SetStatus(codes.Error, "unprocessable event")
			c.logger.Error("dropping unprocessable event",
				"event_id", env.EventID, "event_type", env.EventType, "error", err)
			d.Ack(false)
			return
		}
		span.SetStatus(codes.Error, "handler failed")
		c.logger.Warn("handler failed, requeueing",
			"event_id", env.EventID, "event_type", env.EventType, "error", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
