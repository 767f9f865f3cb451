package characteristic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/outbox"
)

// Service runs the writer contract: guards, mutation, version bump, and one
// outbox row, all inside a single transaction.
type Service struct {
	repo   *Repository
	outbox *outbox.Store
}

// NewService wires the writer.
func NewService(repo *Repository, ob *outbox.Store) *Service {
	return &Service{repo: repo, outbox: ob}
}

// Get returns one characteristic.
func (s *Service) Get(ctx context.Context, id string) (*Characteristic, error) {
	return s.repo.Get(ctx, id)
}

// List returns all characteristics.
func (s *Service) List(ctx context.Context) ([]Characteristic, error) {
	return s.repo.List(ctx)
}

// Create validates and persists a new characteristic, emitting
// CharacteristicCreated through the outbox.
func (s *Service) Create(ctx context.Context, in Input) (*Characteristic, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Characteristic{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Value:     in.Value,
		Unit:      in.Unit,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Insert(ctx, tx, c); err != nil {
		return nil, err
	}
	env, err := events.NewEnvelope(events.CharacteristicCreated, c.Version, httpapi.CorrelationID(ctx), c)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Add(tx, events.TopicCharacteristics, env); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// Update rewrites a characteristic and emits CharacteristicUpdated.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Characteristic, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c.Apply(in)

	if err := s.repo.Update(ctx, tx, c); err != nil {
		return nil, err
	}
	env, err := events.NewEnvelope(events.CharacteristicUpdated, c.Version, httpapi.CorrelationID(ctx), c)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Add(tx, events.TopicCharacteristics, env); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// Delete removes a characteristic and emits CharacteristicDeleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tx, id); err != nil {
		return err
	}
	env, err := events.NewEnvelope(events.CharacteristicDeleted, c.Version+1, httpapi.CorrelationID(ctx), map[string]string{"id": id})
	if err != nil {
		return err
	}
	if err := s.outbox.Add(tx, events.TopicCharacteristics, env); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
