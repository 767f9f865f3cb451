// Package events defines the event envelope and the RabbitMQ publisher and
// consumer shared by every service.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exchange is the single durable topic exchange all services publish to.
const Exchange = "catalog.events"

// Routing keys, one per writer stream.
const (
	TopicCharacteristics = "resource.characteristics.events"
	TopicSpecifications  = "resource.specifications.events"
	TopicPricing         = "commercial.pricing.events"
	TopicOfferings       = "product.offering.events"
)

// Event types carried in the envelope.
const (
	CharacteristicCreated = "CharacteristicCreated"
	CharacteristicUpdated = "CharacteristicUpdated"
	CharacteristicDeleted = "CharacteristicDeleted"

	SpecificationCreated = "SpecificationCreated"
	SpecificationUpdated = "SpecificationUpdated"
	SpecificationDeleted = "SpecificationDeleted"

	PriceCreated  = "PriceCreated"
	PriceUpdated  = "PriceUpdated"
	PriceDeleted  = "PriceDeleted"
	PriceLocked   = "PriceLocked"
	PriceUnlocked = "PriceUnlocked"

	OfferingCreated              = "OfferingCreated"
	OfferingUpdated              = "OfferingUpdated"
	OfferingPublicationInitiated = "OfferingPublicationInitiated"
	OfferingPublished            = "OfferingPublished"
	OfferingPublicationFailed    = "OfferingPublicationFailed"
	OfferingRetired              = "OfferingRetired"
)

// SchemaVersion is the current envelope schema version.
const SchemaVersion = 1

// Envelope is the wire format of every domain event. EventID is the
// idempotency key at consumers; EntityVersion is monotonic per entity.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	EntityVersion int64           `json:"entity_version"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for an event, marshalling the payload.
func NewEnvelope(eventType string, entityVersion int64, correlationID string, payload interface{}) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		EntityVersion: entityVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       body,
	}, nil
}
