package store

import (
	"context"
	"log/slog"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/saga"
)

// SagaHandlers hosts the store-side external-task handlers of the
// publication saga.
type SagaHandlers struct {
	projector *Projector
	logger    *slog.Logger
}

// NewSagaHandlers wires the saga side of the store service.
func NewSagaHandlers(projector *Projector) *SagaHandlers {
	return &SagaHandlers{
		projector: projector,
		logger:    slog.Default().With("component", "store_saga"),
	}
}

// Register subscribes the handlers on a worker.
func (h *SagaHandlers) Register(w *camunda.Worker) {
	w.Subscribe(saga.TopicCreateStoreEntry, h.CreateStoreEntry)
	w.Subscribe(saga.TopicDeleteStoreEntry, h.DeleteStoreEntry)
}

// CreateStoreEntry composes and stores the offering's document ahead of the
// final confirmation. A technical failure here fails the task and lets the
// saga policy decide.
func (h *SagaHandlers) CreateStoreEntry(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	offeringID := camunda.String(vars[saga.VarOfferingID])

	if err := h.projector.Sync(ctx, offeringID); err != nil {
		return nil, err
	}
	h.logger.Info("store entry created", "offering_id", offeringID)
	return map[string]interface{}{"storeEntryCreated": true}, nil
}

// DeleteStoreEntry removes the offering's document on compensation. Deleting
// an absent document succeeds so the compensation stays re-runnable.
func (h *SagaHandlers) DeleteStoreEntry(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	offeringID := camunda.String(vars[saga.VarOfferingID])

	if err := h.projector.Remove(ctx, offeringID); err != nil {
		return nil, err
	}
	h.logger.Info("store entry deleted", "offering_id", offeringID)
	return map[string]interface{}{"storeEntryDeleted": true}, nil
}
