// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// Collections
	documents *mongo.Collection
	results   *mongo.Collection
	counters  *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI      string
	Database string
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	s := &Store{
		client:    client,
		db:        db,
		documents: db.Collection("documents"),
		results:   db.Collection("transmission_results"),
		counters:  db.Collection("counters"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// Document indexes
	_, err := s.documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "number", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating document indexes: %w", err)
	}

	// Result indexes
	_, err = s.results.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "attempted_at", Value: 1}}},
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "attempted_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating result indexes: %w", err)
	}

	// One counter per device and document kind
	_, err = s.counters.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "scope.device_id", Value: 1}, {Key: "scope.kind", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating counter indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// DocumentStore implementation

func (s *Store) CreateDocument(ctx context.Context, doc *fiscal.Document) error {
	_, err := s.documents.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*fiscal.Document, error) {
	var doc fiscal.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *fiscal.Document) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.documents.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}

func (s *Store) ListDocuments(ctx context.Context, filter *storage.DocumentFilter) ([]*fiscal.Document, error) {
	query := bson.M{}
	if filter != nil {
		if filter.Kind != "" {
			query["kind"] = filter.Kind
		}
		if filter.Status != "" {
			query["status"] = filter.Status
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			opts.SetLimit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			opts.SetSkip(int64(filter.Offset))
		}
	}

	cursor, err := s.documents.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*fiscal.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ResultStore implementation

func (s *Store) RecordResult(ctx context.Context, result *fiscal.TransmissionResult) error {
	_, err := s.results.InsertOne(ctx, result)
	return err
}

func (s *Store) ListResults(ctx context.Context, documentID string) ([]*fiscal.TransmissionResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "attempted_at", Value: 1}})
	cursor, err := s.results.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []*fiscal.TransmissionResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// CounterStore implementation

func (s *Store) GetCounter(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	var counter sequence.Counter
	err := s.counters.FindOne(ctx, bson.M{
		"scope.device_id": scope.DeviceID,
		"scope.kind":      scope.Kind,
	}).Decode(&counter)
	if err == mongo.ErrNoDocuments {
		// Unknown scope starts a fresh counter
		return &sequence.Counter{Scope: scope}, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (s *Store) SaveCounter(ctx context.Context, counter *sequence.Counter) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.counters.ReplaceOne(ctx, bson.M{
		"scope.device_id": counter.Scope.DeviceID,
		"scope.kind":      counter.Scope.Kind,
	}, counter, opts)
	return err
}
