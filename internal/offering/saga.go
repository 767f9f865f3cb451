package offering

import (
	"context"
	"log/slog"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/saga"
)

// SagaHandlers hosts the offering writer's external-task handlers: the final
// confirmation step and the DRAFT-revert compensation.
type SagaHandlers struct {
	service *Service
	logger  *slog.Logger
}

// NewSagaHandlers wires the saga side of the writer.
func NewSagaHandlers(service *Service) *SagaHandlers {
	return &SagaHandlers{
		service: service,
		logger:  slog.Default().With("component", "offering_saga"),
	}
}

// Register subscribes the handlers on a worker.
func (h *SagaHandlers) Register(w *camunda.Worker) {
	w.Subscribe(saga.TopicConfirmPublication, h.ConfirmPublication)
	w.Subscribe(saga.TopicRevertOfferingToDraft, h.RevertToDraft)
}

// ConfirmPublication performs PUBLISHING→PUBLISHED. A technical failure here
// leaves the task to the engine's retry policy.
func (h *SagaHandlers) ConfirmPublication(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	offeringID := camunda.String(vars[saga.VarOfferingID])

	if err := h.service.ConfirmPublication(ctx, offeringID); err != nil {
		return nil, err
	}
	h.logger.Info("publication confirmed", "offering_id", offeringID)
	return map[string]interface{}{"published": true}, nil
}

// RevertToDraft performs PUBLISHING→DRAFT. Reverting an offering that already
// left PUBLISHING is treated as done so compensation stays re-runnable.
func (h *SagaHandlers) RevertToDraft(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	offeringID := camunda.String(vars[saga.VarOfferingID])

	if err := h.service.FailPublication(ctx, offeringID); err != nil {
		current, gerr := h.service.Get(ctx, offeringID)
		if gerr == nil && current.LifecycleStatus == StatusDraft {
			h.logger.Info("offering already reverted", "offering_id", offeringID)
			return map[string]interface{}{"reverted": true}, nil
		}
		return nil, err
	}
	h.logger.Info("offering reverted to draft", "offering_id", offeringID)
	return map[string]interface{}{"reverted": true}, nil
}
