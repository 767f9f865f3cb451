// Package characteristic implements the characteristic writer: the
// authoritative store for resource characteristics and the event stream the
// specification writer's validation cache feeds on.
package characteristic

import (
	"strings"
	"time"

	"github.com/procat/backend/internal/apperr"
)

// Characteristic is a named, typed attribute a specification can reference.
type Characteristic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the create/update request body.
type Input struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Validate checks the invariants of a characteristic payload.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	if strings.TrimSpace(in.Value) == "" {
		return apperr.New(apperr.KindValidation, "value is required")
	}
	return nil
}

// Apply copies the input onto the entity and bumps its version.
func (c *Characteristic) Apply(in Input) {
	c.Name = in.Name
	c.Value = in.Value
	c.Unit = in.Unit
	c.Version++
	c.UpdatedAt = time.Now().UTC()
}
