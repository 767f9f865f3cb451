package pricing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/saga"
)

// SagaHandlers hosts the pricing writer's external-task handlers.
type SagaHandlers struct {
	service *Service
	logger  *slog.Logger
}

// NewSagaHandlers wires the saga side of the writer.
func NewSagaHandlers(service *Service) *SagaHandlers {
	return &SagaHandlers{
		service: service,
		logger:  slog.Default().With("component", "pricing_saga"),
	}
}

// Register subscribes the handlers on a worker.
func (h *SagaHandlers) Register(w *camunda.Worker) {
	w.Subscribe(saga.TopicLockPrices, h.LockPrices)
	w.Subscribe(saga.TopicUnlockPrices, h.UnlockPrices)
}

// LockPrices acquires the saga lock on every referenced price. Any price it
// cannot lock raises LOCK_PRICES_FAILED; prices locked earlier in the same
// saga stay locked and the compensation path releases them.
func (h *SagaHandlers) LockPrices(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	priceIDs := camunda.StringSlice(vars[saga.VarPricingIDs])
	sagaID := task.ProcessInstanceID

	for _, id := range priceIDs {
		if err := h.service.Lock(ctx, id, sagaID); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && (ae.Kind == apperr.KindLocked || ae.Kind == apperr.KindNotFound) {
				h.logger.Info("price lock refused", "price_id", id, "saga_id", sagaID, "error", err)
				return nil, &camunda.BpmnError{
					Code:    saga.ErrLockPricesFailed,
					Message: "could not lock price " + id,
				}
			}
			return nil, err
		}
	}

	h.logger.Info("prices locked", "saga_id", sagaID, "count", len(priceIDs))
	return map[string]interface{}{"pricesLocked": true}, nil
}

// UnlockPrices releases every referenced price. It is best-effort: failures
// are logged and skipped so the compensation path always terminates.
func (h *SagaHandlers) UnlockPrices(ctx context.Context, task camunda.Task) (map[string]interface{}, error) {
	vars := camunda.Decode(task.Variables)
	priceIDs := camunda.StringSlice(vars[saga.VarPricingIDs])
	sagaID := task.ProcessInstanceID

	unlocked := 0
	for _, id := range priceIDs {
		if err := h.service.Unlock(ctx, id, sagaID); err != nil {
			h.logger.Warn("price unlock failed, continuing", "price_id", id, "saga_id", sagaID, "error", err)
			continue
		}
		unlocked++
	}

	h.logger.Info("prices unlocked", "saga_id", sagaID, "unlocked", unlocked, "total", len(priceIDs))
	return map[string]interface{}{"pricesUnlocked": true}, nil
}
