package offering

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/outbox"
	"github.com/procat/backend/internal/saga"
)

// ProcessStarter starts the publication process after the state transition
// has committed. *camunda.Client satisfies it.
type ProcessStarter interface {
	StartProcess(ctx context.Context, definitionKey string, vars camunda.Variables) (string, error)
}

// Service runs the writer contract for offerings and couples the lifecycle
// to the publication saga.
type Service struct {
	repo    *Repository
	outbox  *outbox.Store
	starter ProcessStarter
	logger  *slog.Logger
}

// NewService wires the writer. starter may be nil in worker-only processes.
func NewService(repo *Repository, ob *outbox.Store, starter ProcessStarter) *Service {
	return &Service{
		repo:    repo,
		outbox:  ob,
		starter: starter,
		logger:  slog.Default().With("component", "offering_service"),
	}
}

type emitFn func(eventType string, entityVersion int64, payload interface{}) error

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx, emit emitFn) error) error {
	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	correlationID := httpapi.CorrelationID(ctx)
	emit := func(eventType string, entityVersion int64, payload interface{}) error {
		env, err := events.NewEnvelope(eventType, entityVersion, correlationID, payload)
		if err != nil {
			return err
		}
		return s.outbox.Add(tx, events.TopicOfferings, env)
	}

	if err := fn(tx, emit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns one offering.
func (s *Service) Get(ctx context.Context, id string) (*Offering, error) {
	return s.repo.Get(ctx, id)
}

// List returns all offerings.
func (s *Service) List(ctx context.Context) ([]Offering, error) {
	return s.repo.List(ctx)
}

// Create persists a new DRAFT offering, emitting OfferingCreated.
func (s *Service) Create(ctx context.Context, in Input) (*Offering, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Offering{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		SpecificationIDs: in.SpecificationIDs,
		PriceIDs:         in.PriceIDs,
		SalesChannels:    in.SalesChannels,
		LifecycleStatus:  StatusDraft,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		if err := s.repo.Insert(ctx, tx, o); err != nil {
			return err
		}
		return emit(events.OfferingCreated, o.Version, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Update rewrites a DRAFT offering, emitting OfferingUpdated.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Offering, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated *Offering
	err := s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.MutableGuard(); err != nil {
			return err
		}
		o.Apply(in)
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return err
		}
		updated = o
		return emit(events.OfferingUpdated, o.Version, o)
	})
	return updated, err
}

// Delete removes a DRAFT offering.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.MutableGuard(); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		return emit(events.OfferingRetired, o.Version+1, map[string]string{"id": id})
	})
}

// Publish transitions DRAFT→PUBLISHING, commits that together with an
// OfferingPublicationInitiated outbox row, and only then starts the
// publication process. The offering reaches PUBLISHED exclusively through
// the saga's confirmation step.
func (s *Service) Publish(ctx context.Context, id string) (*Offering, error) {
	var published *Offering
	err := s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.StartPublication(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return err
		}
		published = o
		return emit(events.OfferingPublicationInitiated, o.Version, o)
	})
	if err != nil {
		return nil, err
	}

	vars := camunda.Encode(map[string]interface{}{
		saga.VarOfferingID:       published.ID,
		saga.VarPricingIDs:       published.PriceIDs,
		saga.VarSpecificationIDs: published.SpecificationIDs,
	})
	instanceID, err := s.starter.StartProcess(ctx, saga.ProcessKey, vars)
	if err != nil {
		// The transition is committed; the saga did not start. Revert to
		// DRAFT so the offering is not stranded in PUBLISHING.
		s.logger.Error("saga start failed, reverting to draft", "offering_id", id, "error", err)
		if rerr := s.FailPublication(ctx, id); rerr != nil {
			s.logger.Error("revert after saga-start failure also failed", "offering_id", id, "error", rerr)
		}
		return nil, fmt.Errorf("start publication process: %w", err)
	}

	s.logger.Info("publication saga started", "offering_id", id, "process_instance_id", instanceID)
	return published, nil
}

// ConfirmPublication transitions PUBLISHING→PUBLISHED, emitting
// OfferingPublished. The saga's final step calls it.
func (s *Service) ConfirmPublication(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.ConfirmPublication(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return err
		}
		return emit(events.OfferingPublished, o.Version, o)
	})
}

// FailPublication transitions PUBLISHING→DRAFT, emitting
// OfferingPublicationFailed. Compensation calls it.
func (s *Service) FailPublication(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.FailPublication(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return err
		}
		return emit(events.OfferingPublicationFailed, o.Version, o)
	})
}

// Retire transitions PUBLISHED→RETIRED, emitting OfferingRetired.
func (s *Service) Retire(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		o, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := o.Retire(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return err
		}
		return emit(events.OfferingRetired, o.Version, o)
	})
}
