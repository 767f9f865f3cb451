package specification

import (
	"context"
	"log/slog"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/saga"
)

// SagaHandlers hosts the specification writer's external-task handlers.
type SagaHandlers struct {
	service *Service
	logger  *slog.Logger
}

// NewSagaHandlers wires the saga side of the writer.
func NewSagaHandlers(service *Service) *SagaHandlers {
	return &SagaHandlers{
		service: service,
		logger:  slog.Default().With("component", "specification_saga"),
	}
}

// Register subscribes the handlers on a worker.
func (h *SagaHandlers) Register(w *camunda.Worker) {
	w.Subscribe(saga.TopicValidateSpecifications, h.ValidateSpecifications)
}

// ValidateSpecifications confirms every referenced specification still
// exists. A missing reference raises VALIDATE_SPECS_FAILED so the saga takes
// its compensation path.
func (h *SagaHandlers) ValidateSpecifications(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	offeringID := camunda.String(vars[saga.VarOfferingID])
	specIDs := camunda.StringSlice(vars[saga.VarSpecificationIDs])

	ok, err := h.service.ValidateExisting(ctx, specIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		h.logger.Info("specification validation failed", "offering_id", offeringID, "specification_ids", specIDs)
		return nil, &camunda.BpmnError{
			Code:    saga.ErrValidateSpecsFailed,
			Message: "one or more specifications do not exist",
		}
	}

	h.logger.Info("specifications validated", "offering_id", offeringID)
	return map[string]interface{}{"specificationsValid": true}, nil
}
