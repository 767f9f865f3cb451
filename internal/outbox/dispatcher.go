package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/procat/backend/internal/events"
)

// NotifyChannel is the Postgres NOTIFY channel fired by the outbox trigger.
const NotifyChannel = "outbox_events"

const (
	pollInterval    = 2 * time.Second
	maxDrainBackoff = 30 * time.Second
)

// Publisher is the broker-facing side the dispatcher drains rows into.
type Publisher interface {
	Publish(ctx context.Context, topic string, env events.Envelope) error
}

// Listener is the notification fast path. pq.Listener satisfies it.
type Listener interface {
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// Metrics counts dispatcher outcomes.
type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics registers dispatcher counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox rows published and marked SENT.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_failed_total",
			Help: "Outbox rows marked FAILED.",
		}),
	}
	reg.MustRegister(m.Published, m.Failed)
	return m
}

// Dispatcher drains PENDING rows to the broker. It blocks on the NOTIFY
// channel when available and polls every two seconds as a correctness
// fallback; rows are committed one at a time.
type Dispatcher struct {
	store     *Store
	publisher Publisher
	listener  Listener
	metrics   *Metrics
	logger    *slog.Logger
}

// NewDispatcher wires a dispatcher. listener and metrics may be nil.
func NewDispatcher(store *Store, publisher Publisher, listener Listener, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		listener:  listener,
		metrics:   metrics,
		logger:    slog.Default().With("component", "outbox_dispatcher"),
	}
}

// NewListener opens a pq.Listener on the outbox NOTIFY channel.
func NewListener(databaseURL string) (*pq.Listener, error) {
	l := pq.NewListener(databaseURL, time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("outbox listener event", "event", event, "error", err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Run drains on startup, then on every notification or poll tick, until ctx
// is cancelled. Transport failures back off exponentially without marking
// rows FAILED.
func (d *Dispatcher) Run(ctx context.Context) error {
	var notifications <-chan *pq.Notification
	if d.listener != nil {
		notifications = d.listener.NotificationChannel()
		defer d.listener.Close()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	backoff := time.Duration(0)
	for {
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := d.Drain(ctx); err != nil {
			if backoff == 0 {
				backoff = pollInterval
			} else if backoff < maxDrainBackoff {
				backoff *= 2
			}
			d.logger.Warn("drain failed, backing off", "backoff", backoff, "error", err)
			continue
		}
		backoff = 0

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notifications:
		case <-ticker.C:
		}
	}
}

// Drain publishes every PENDING row in FIFO order. A transient broker error
// stops the drain and leaves the remaining rows PENDING so ordering holds;
// unparseable rows are marked FAILED and skipped.
func (d *Dispatcher) Drain(ctx context.Context) error {
	records, err := d.store.Pending(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		var env events.Envelope
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			d.logger.Error("corrupt outbox payload", "row_id", rec.ID, "error", err)
			if err := d.store.MarkFailed(ctx, rec.ID, "corrupt payload: "+err.Error()); err != nil {
				return err
			}
			if d.metrics != nil {
				d.metrics.Failed.Inc()
			}
			continue
		}

		if err := d.publisher.Publish(ctx, rec.Topic, env); err != nil {
			if errors.Is(err, events.ErrTerminal) {
				d.logger.Error("terminal publish failure", "row_id", rec.ID, "error", err)
				if err := d.store.MarkFailed(ctx, rec.ID, err.Error()); err != nil {
					return err
				}
				if d.metrics != nil {
					d.metrics.Failed.Inc()
				}
				continue
			}
			return err
		}

		if err := d.store.MarkSent(ctx, rec.ID); err != nil {
			return err
		}
		if d.metrics != nil {
			d.metrics.Published.Inc()
		}
		d.logger.Info("published outbox row",
			"row_id", rec.ID, "topic", rec.Topic, "event_id", env.EventID, "event_type", env.EventType)
	}
	return nil
}
