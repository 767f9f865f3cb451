package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/procat/backend/internal/apperr"
)

const (
	documentsCollection = "published_offerings"
	ledgerCollection    = "processed_events"
)

// MongoStore backs DocumentStore and Ledger with one Mongo database.
type MongoStore struct {
	client    *mongo.Client
	documents *mongo.Collection
	processed *mongo.Collection
}

// NewMongoStore connects and ensures the ledger's unique index on event_id,
// which is what makes MarkProcessed atomic.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(database)

	s := &MongoStore{
		client:    client,
		documents: db.Collection(documentsCollection),
		processed: db.Collection(ledgerCollection),
	}
	_, err = s.processed.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure ledger index: %w", err)
	}
	return s, nil
}

// Ping reports whether the database answers.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Upsert writes or replaces a document by offering id.
func (s *MongoStore) Upsert(ctx context.Context, doc Document) error {
	_, err := s.documents.ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// Get loads one document.
func (s *MongoStore) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.New(apperr.KindNotFound, "offering not found in store")
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &doc, nil
}

// Delete removes a document; deleting a missing document is a no-op.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// List returns every document.
func (s *MongoStore) List(ctx context.Context) ([]Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Document
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return out, nil
}

// ReferencingCharacteristic finds offerings embedding a characteristic.
func (s *MongoStore) ReferencingCharacteristic(ctx context.Context, characteristicID string) ([]string, error) {
	return s.findIDs(ctx, bson.M{"specifications.characteristics.id": characteristicID})
}

// ReferencingSpecification finds offerings embedding a specification.
func (s *MongoStore) ReferencingSpecification(ctx context.Context, specificationID string) ([]string, error) {
	return s.findIDs(ctx, bson.M{"specifications.id": specificationID})
}

// ReferencingPrice finds offerings embedding a price.
func (s *MongoStore) ReferencingPrice(ctx context.Context, priceID string) ([]string, error) {
	return s.findIDs(ctx, bson.M{"pricing.id": priceID})
}

func (s *MongoStore) findIDs(ctx context.Context, filter bson.M) ([]string, error) {
	cursor, err := s.documents.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("query referencing documents: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode reference row: %w", err)
		}
		ids = append(ids, row.ID)
	}
	return ids, cursor.Err()
}

// MarkProcessed inserts the event id into the ledger. A duplicate-key error
// means the event was processed before.
func (s *MongoStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	_, err := s.processed.InsertOne(ctx, bson.M{
		"event_id":     eventID,
		"processed_at": time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return false, nil
}

// Unmark removes a ledger entry after a failed side effect.
func (s *MongoStore) Unmark(ctx context.Context, eventID string) error {
	if _, err := s.processed.DeleteOne(ctx, bson.M{"event_id": eventID}); err != nil {
		return fmt.Errorf("unmark event %s: %w", eventID, err)
	}
	return nil
}
