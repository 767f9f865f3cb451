// Package store implements the read side: the projector that folds the
// event streams into denormalized offering documents, the Mongo-backed
// document store and processed-event ledger, the Elasticsearch index, and
// the public store API.
package store

import (
	"context"
	"time"
)

// Document is the denormalized offering view served to shoppers. It is never
// written transactionally with the writers; the projector always rebuilds it
// from authoritative state. Price values keep their decimal scale as strings;
// floats appear only in the search index.
type Document struct {
	ID              string      `bson:"_id" json:"id"`
	Name            string      `bson:"name" json:"name"`
	Description     string      `bson:"description,omitempty" json:"description,omitempty"`
	LifecycleStatus string      `bson:"lifecycle_status" json:"lifecycle_status"`
	Channels        []string    `bson:"channels" json:"channels"`
	Specifications  []SpecView  `bson:"specifications" json:"specifications"`
	Pricing         []PriceView `bson:"pricing" json:"pricing"`
	ComposedAt      time.Time   `bson:"composed_at" json:"composed_at"`
}

// SpecView is a specification embedded in a document.
type SpecView struct {
	ID              string               `bson:"id" json:"id"`
	Name            string               `bson:"name" json:"name"`
	Characteristics []CharacteristicView `bson:"characteristics" json:"characteristics"`
}

// CharacteristicView is a characteristic embedded in a specification view.
type CharacteristicView struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Value string `bson:"value" json:"value"`
	Unit  string `bson:"unit,omitempty" json:"unit,omitempty"`
}

// PriceView is a price embedded in a document.
type PriceView struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Value    string `bson:"value" json:"value"`
	Currency string `bson:"currency" json:"currency"`
	Unit     string `bson:"unit,omitempty" json:"unit,omitempty"`
}

// DocumentStore is the projector's exclusive document storage. Reference
// lookups run against the nested paths of the embedded views.
type DocumentStore interface {
	Upsert(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Document, error)

	// IDs of documents embedding the given entity.
	ReferencingCharacteristic(ctx context.Context, characteristicID string) ([]string, error)
	ReferencingSpecification(ctx context.Context, specificationID string) ([]string, error)
	ReferencingPrice(ctx context.Context, priceID string) ([]string, error)
}

// Ledger records processed event ids so redeliveries stay side-effect free.
// MarkProcessed must be conditional: the second call for the same event id
// reports already-processed instead of erroring.
type Ledger interface {
	MarkProcessed(ctx context.Context, eventID string) (alreadyProcessed bool, err error)
	// Unmark releases a claim when the side effect failed, so the
	// redelivery gets another attempt.
	Unmark(ctx context.Context, eventID string) error
}

// SearchIndex is the projector's exclusive search storage.
type SearchIndex interface {
	Index(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) ([]Document, error)
}

// Query is the store search surface.
type Query struct {
	Text             string
	MinPrice         *float64
	MaxPrice         *float64
	Channel          string
	CharacteristicID string
}
