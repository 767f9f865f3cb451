package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/procat/backend/internal/events"
)

// Metrics counts projector outcomes.
type Metrics struct {
	Processed  prometheus.Counter
	Duplicates prometheus.Counter
}

// NewMetrics registers projector counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projector_processed_total",
			Help: "Events applied to the read model.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projector_duplicates_total",
			Help: "Redelivered events skipped via the processed-event ledger.",
		}),
	}
	reg.MustRegister(m.Processed, m.Duplicates)
	return m
}

// Projector folds domain events into the document store and search index.
// The ledger check runs before any side effect, so redeliveries are no-ops.
type Projector struct {
	composer  *Composer
	documents DocumentStore
	index     SearchIndex
	ledger    Ledger
	metrics   *Metrics
	logger    *slog.Logger
}

// NewProjector wires the projector. metrics may be nil.
func NewProjector(composer *Composer, documents DocumentStore, index SearchIndex, ledger Ledger, metrics *Metrics) *Projector {
	return &Projector{
		composer:  composer,
		documents: documents,
		index:     index,
		ledger:    ledger,
		metrics:   metrics,
		logger:    slog.Default().With("component", "projector"),
	}
}

type eventRef struct {
	ID string `json:"id"`
}

// HandleEvent is the consumer entry point. Composition failures return a
// retryable error so the message is redelivered; unknown event types are
// ledgered and ignored.
func (p *Projector) HandleEvent(ctx context.Context, env events.Envelope) error {
	var ref eventRef
	if err := json.Unmarshal(env.Payload, &ref); err != nil || ref.ID == "" {
		return fmt.Errorf("%w: event %s has no entity id", events.ErrUnprocessable, env.EventID)
	}

	already, err := p.ledger.MarkProcessed(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if already {
		if p.metrics != nil {
			p.metrics.Duplicates.Inc()
		}
		p.logger.Info("skipping already-processed event", "event_id", env.EventID)
		return nil
	}

	if err := p.apply(ctx, env.EventType, ref.ID); err != nil {
		// Release the ledger entry so the redelivery is not deduplicated
		// away before the side effect ever happened.
		if uerr := p.ledger.Unmark(ctx, env.EventID); uerr != nil {
			p.logger.Error("ledger rollback failed", "event_id", env.EventID, "error", uerr)
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.Processed.Inc()
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, eventType, entityID string) error {
	switch eventType {
	case events.OfferingPublished:
		return p.Sync(ctx, entityID)
	case events.OfferingRetired:
		return p.Remove(ctx, entityID)
	case events.CharacteristicUpdated, events.CharacteristicDeleted:
		return p.fanOut(ctx, p.documents.ReferencingCharacteristic, entityID)
	case events.SpecificationUpdated, events.SpecificationDeleted:
		return p.fanOut(ctx, p.documents.ReferencingSpecification, entityID)
	case events.PriceUpdated, events.PriceDeleted:
		return p.fanOut(ctx, p.documents.ReferencingPrice, entityID)
	default:
		p.logger.Debug("ignoring event type", "event_type", eventType)
		return nil
	}
}

// Sync composes one offering and writes document and index entry. Only a
// RETIRED or deleted offering deletes instead; missing references are
// handled inside composition.
func (p *Projector) Sync(ctx context.Context, offeringID string) error {
	doc, err := p.composer.Compose(ctx, offeringID)
	if errors.Is(err, ErrRetired) || errors.Is(err, ErrOfferingGone) {
		p.logger.Info("offering gone, removing from store", "offering_id", offeringID)
		return p.Remove(ctx, offeringID)
	}
	if err != nil {
		return err
	}

	if err := p.documents.Upsert(ctx, *doc); err != nil {
		return err
	}
	if err := p.index.Index(ctx, *doc); err != nil {
		return err
	}
	p.logger.Info("offering synced", "offering_id", offeringID)
	return nil
}

// Remove deletes document and index entry for an offering.
func (p *Projector) Remove(ctx context.Context, offeringID string) error {
	if err := p.documents.Delete(ctx, offeringID); err != nil {
		return err
	}
	return p.index.Delete(ctx, offeringID)
}

func (p *Projector) fanOut(ctx context.Context, find func(context.Context, string) ([]string, error), entityID string) error {
	ids, err := find(ctx, entityID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		p.logger.Debug("no documents reference entity", "entity_id", entityID)
		return nil
	}
	for _, offeringID := range ids {
		if err := p.Sync(ctx, offeringID); err != nil {
			return err
		}
	}
	p.logger.Info("fan-out recomposed offerings", "entity_id", entityID, "count", len(ids))
	return nil
}
