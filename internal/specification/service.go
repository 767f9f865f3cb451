package specification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/outbox"
)

// Service runs the writer contract for specifications. Every create/update
// checks characteristic references against the validation cache first.
type Service struct {
	repo   *Repository
	cache  *Cache
	outbox *outbox.Store
}

// NewService wires the writer.
func NewService(repo *Repository, cache *Cache, ob *outbox.Store) *Service {
	return &Service{repo: repo, cache: cache, outbox: ob}
}

// Get returns one specification.
func (s *Service) Get(ctx context.Context, id string) (*Specification, error) {
	return s.repo.Get(ctx, id)
}

// List returns all specifications.
func (s *Service) List(ctx context.Context) ([]Specification, error) {
	return s.repo.List(ctx)
}

// ValidateRefs rejects any characteristic id absent from the cache.
func (s *Service) ValidateRefs(ctx context.Context, ids []string) error {
	missing, err := s.cache.Missing(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperr.New(apperr.KindValidation, "unknown characteristic references").
			WithDetails(map[string]interface{}{"missing_characteristic_ids": missing})
	}
	return nil
}

// ValidateExisting reports whether every id names a stored specification.
// Saga validation uses it before a publication proceeds.
func (s *Service) ValidateExisting(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, ids)
}

// Create validates and persists a new specification, emitting
// SpecificationCreated through the outbox.
func (s *Service) Create(ctx context.Context, in Input) (*Specification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ValidateRefs(ctx, in.CharacteristicIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	spec := &Specification{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Description:       in.Description,
		CharacteristicIDs: in.CharacteristicIDs,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Insert(ctx, tx, spec); err != nil {
		return nil, err
	}
	env, err := events.NewEnvelope(events.SpecificationCreated, spec.Version, httpapi.CorrelationID(ctx), spec)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Add(tx, events.TopicSpecifications, env); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return spec, nil
}

// Update rewrites a specification and emits SpecificationUpdated.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Specification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ValidateRefs(ctx, in.CharacteristicIDs); err != nil {
		return nil, err
	}

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	spec, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	spec.Apply(in)

	if err := s.repo.Update(ctx, tx, spec); err != nil {
		return nil, err
	}
	env, err := events.NewEnvelope(events.SpecificationUpdated, spec.Version, httpapi.CorrelationID(ctx), spec)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Add(tx, events.TopicSpecifications, env); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return spec, nil
}

// Delete removes a specification and emits SpecificationDeleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	spec, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tx, id); err != nil {
		return err
	}
	env, err := events.NewEnvelope(events.SpecificationDeleted, spec.Version+1, httpapi.CorrelationID(ctx), map[string]string{"id": id})
	if err != nil {
		return err
	}
	if err := s.outbox.Add(tx, events.TopicSpecifications, env); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
