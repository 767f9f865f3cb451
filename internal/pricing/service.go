package pricing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/outbox"
)

// Service runs the writer contract for prices, including the saga lock
// protocol: acquisition is idempotent per saga and exclusive across sagas.
type Service struct {
	repo   *Repository
	outbox *outbox.Store
}

// NewService wires the writer.
func NewService(repo *Repository, ob *outbox.Store) *Service {
	return &Service{repo: repo, outbox: ob}
}

// emitFn writes one domain event into the outbox inside the open transaction.
type emitFn func(eventType string, entityVersion int64, payload interface{}) error

// inTx runs fn inside a transaction, giving it an outbox emit shortcut bound
// to the request's correlation id.
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
		return s.outbox.Add(tx, events.TopicPricing, env)
	}

	if err := fn(tx, emit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns one price.
func (s *Service) Get(ctx context.Context, id string) (*Price, error) {
	return s.repo.Get(ctx, id)
}

// List returns all prices.
func (s *Service) List(ctx context.Context) ([]Price, error) {
	return s.repo.List(ctx)
}

// Create validates and persists a new price, emitting PriceCreated.
func (s *Service) Create(ctx context.Context, in Input) (*Price, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Price{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Value:     in.Value.String(),
		Unit:      in.Unit,
		Currency:  in.Currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		if err := s.repo.Insert(ctx, tx, p); err != nil {
			return err
		}
		return emit(events.PriceCreated, p.Version, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update rewrites a price unless it is locked, emitting PriceUpdated.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Price, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var updated *Price
	err := s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		p, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Locked {
			return apperr.New(apperr.KindLocked, "price is locked by a running publication")
		}
		p.Apply(in)
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return emit(events.PriceUpdated, p.Version, p)
	})
	return updated, err
}

// Delete removes a price unless it is locked, emitting PriceDeleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		p, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Locked {
			return apperr.New(apperr.KindLocked, "price is locked by a running publication")
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		return emit(events.PriceDeleted, p.Version+1, map[string]string{"id": id})
	})
}

// Lock acquires the saga lock on a price. Re-locking by the same saga is a
// no-op; a lock held by another saga maps to LOCKED.
func (s *Service) Lock(ctx context.Context, id, sagaID string) error {
	if sagaID == "" {
		return apperr.New(apperr.KindValidation, "saga id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		p, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Locked {
			if p.LockedBySaga == sagaID {
				return nil
			}
			return apperr.Newf(apperr.KindLocked, "price %s is locked by another publication", id)
		}
		p.Locked = true
		p.LockedBySaga = sagaID
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		return emit(events.PriceLocked, p.Version, map[string]string{"id": id, "saga_id": sagaID})
	})
}

// Unlock releases the saga lock. Unlocking an already-unlocked price is a
// no-op so compensation stays re-runnable.
func (s *Service) Unlock(ctx context.Context, id, sagaID string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit emitFn) error {
		p, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.Locked {
			return nil
		}
		p.Locked = false
		p.LockedBySaga = ""
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		return emit(events.PriceUnlocked, p.Version, map[string]string{"id": id, "saga_id": sagaID})
	})
}
