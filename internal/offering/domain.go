// Package offering implements the offering writer: the product offering
// lifecycle and the entry point of the publication saga.
package offering

import (
	"strings"
	"time"

	"github.com/procat/backend/internal/apperr"
)

// Lifecycle states.
const (
	StatusDraft      = "DRAFT"
	StatusPublishing = "PUBLISHING"
	StatusPublished  = "PUBLISHED"
	StatusRetired    = "RETIRED"
)

// Offering is a sellable product assembled from specifications and prices.
// Only DRAFT permits field updates or deletion; PUBLISHING refuses all
// external mutation until the saga settles it into PUBLISHED or back to
// DRAFT.
type Offering struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	SpecificationIDs []string  `json:"specification_ids"`
	PriceIDs         []string  `json:"price_ids"`
	SalesChannels    []string  `json:"sales_channels"`
	LifecycleStatus  string    `json:"lifecycle_status"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Input is the create/update request body.
type Input struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	SpecificationIDs []string `json:"specification_ids"`
	PriceIDs         []string `json:"price_ids"`
	SalesChannels    []string `json:"sales_channels"`
}

// Validate checks the shape invariants of an offering payload.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	return nil
}

// Apply copies the input onto the entity and bumps its version. Callers must
// have checked the DRAFT guard first.
func (o *Offering) Apply(in Input) {
	o.Name = in.Name
	o.Description = in.Description
	o.SpecificationIDs = in.SpecificationIDs
	o.PriceIDs = in.PriceIDs
	o.SalesChannels = in.SalesChannels
	o.Version++
	o.UpdatedAt = time.Now().UTC()
}

// StartPublication transitions DRAFT→PUBLISHING after checking the
// publication preconditions.
func (o *Offering) StartPublication() error {
	if o.LifecycleStatus != StatusDraft {
		return apperr.Newf(apperr.KindLifecycle, "cannot publish offering in state %s", o.LifecycleStatus)
	}
	if len(o.SpecificationIDs) == 0 {
		return apperr.New(apperr.KindValidation, "offering needs at least one specification to publish")
	}
	if len(o.PriceIDs) == 0 {
		return apperr.New(apperr.KindValidation, "offering needs at least one price to publish")
	}
	if len(o.SalesChannels) == 0 {
		return apperr.New(apperr.KindValidation, "offering needs at least one sales channel to publish")
	}
	o.transition(StatusPublishing)
	return nil
}

// ConfirmPublication transitions PUBLISHING→PUBLISHED.
func (o *Offering) ConfirmPublication() error {
	if o.LifecycleStatus != StatusPublishing {
		return apperr.Newf(apperr.KindLifecycle, "cannot confirm publication in state %s", o.LifecycleStatus)
	}
	o.transition(StatusPublished)
	return nil
}

// FailPublication transitions PUBLISHING→DRAFT on the compensation path.
func (o *Offering) FailPublication() error {
	if o.LifecycleStatus != StatusPublishing {
		return apperr.Newf(apperr.KindLifecycle, "cannot revert publication in state %s", o.LifecycleStatus)
	}
	o.transition(StatusDraft)
	return nil
}

// Retire transitions PUBLISHED→RETIRED.
func (o *Offering) Retire() error {
	if o.LifecycleStatus != StatusPublished {
		return apperr.Newf(apperr.KindLifecycle, "cannot retire offering in state %s", o.LifecycleStatus)
	}
	o.transition(StatusRetired)
	return nil
}

// MutableGuard refuses updates and deletes outside DRAFT.
func (o *Offering) MutableGuard() error {
	switch o.LifecycleStatus {
	case StatusDraft:
		return nil
	case StatusPublishing:
		return apperr.New(apperr.KindLifecycle, "offering is being published")
	default:
		return apperr.Newf(apperr.KindLifecycle, "offering in state %s is immutable", o.LifecycleStatus)
	}
}

func (o *Offering) transition(status string) {
	o.LifecycleStatus = status
	o.Version++
	o.UpdatedAt = time.Now().UTC()
}
