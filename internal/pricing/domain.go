// Package pricing implements the pricing writer: price CRUD plus the
// exclusive saga lock that keeps prices stable while a publication runs.
package pricing

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/procat/backend/internal/apperr"
)

// Price is a commercial price. Value keeps its original decimal scale as a
// string; conversion to a float happens only at the search-index boundary.
// While Locked is true no update or delete is permitted.
type Price struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	Unit         string    `json:"unit,omitempty"`
	Currency     string    `json:"currency"`
	Locked       bool      `json:"locked"`
	LockedBySaga string    `json:"locked_by_saga,omitempty"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Input is the create/update request body. Value accepts both JSON numbers
// and strings so decimal scale survives the round trip.
type Input struct {
	Name     string      `json:"name"`
	Value    json.Number `json:"value"`
	Unit     string      `json:"unit,omitempty"`
	Currency string      `json:"currency"`
}

// Validate checks the invariants of a price payload.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return apperr.New(apperr.KindValidation, "currency is required")
	}
	value, err := strconv.ParseFloat(in.Value.String(), 64)
	if err != nil {
		return apperr.New(apperr.KindValidation, "value must be numeric")
	}
	if value <= 0 {
		return apperr.New(apperr.KindValidation, "value must be positive")
	}
	return nil
}

// Apply copies the input onto the entity and bumps its version.
func (p *Price) Apply(in Input) {
	p.Name = in.Name
	p.Value = in.Value.String()
	p.Unit = in.Unit
	p.Currency = in.Currency
	p.Version++
	p.UpdatedAt = time.Now().UTC()
}
