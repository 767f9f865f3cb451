// Package specification implements the specification writer, including the
// local characteristic validation cache that decouples write-time checks
// from the characteristic service's availability.
package specification

import (
	"strings"
	"time"

	"github.com/procat/backend/internal/apperr"
)

// Specification groups an ordered set of characteristic references.
type Specification struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	CharacteristicIDs []string  `json:"characteristic_ids"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Input is the create/update request body.
type Input struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	CharacteristicIDs []string `json:"characteristic_ids"`
}

// Validate checks the shape invariants. Reference existence is checked
// against the validation cache by the service.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	if len(in.CharacteristicIDs) == 0 {
		return apperr.New(apperr.KindValidation, "at least one characteristic reference is required")
	}
	seen := make(map[string]struct{}, len(in.CharacteristicIDs))
	for _, id := range in.CharacteristicIDs {
		if strings.TrimSpace(id) == "" {
			return apperr.New(apperr.KindValidation, "characteristic ids must be non-empty")
		}
		if _, dup := seen[id]; dup {
			return apperr.Newf(apperr.KindValidation, "duplicate characteristic reference %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Apply copies the input onto the entity and bumps its version.
func (s *Specification) Apply(in Input) {
	s.Name = in.Name
	s.Description = in.Description
	s.CharacteristicIDs = in.CharacteristicIDs
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}
