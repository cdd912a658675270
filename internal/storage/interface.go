// Package storage provides data storage interfaces and implementations
// for the fiscal transmission service.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [DocumentStore]: fiscal document state and confirmation fields
//   - [ResultStore]: immutable per-attempt transmission results
//   - [CounterStore]: sequence counters per (device, document kind)
//
// The [Store] interface combines all sub-stores for convenience. It
// satisfies both the orchestrator's document store and the sequence
// allocator's counter store.
//
// # Implementations
//
// The mongodb sub-package provides a production MongoDB implementation;
// sqlite provides an embedded pure-Go backend; memory backs tests and the
// demo environment.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines. Counter consistency does not rely on the store: the
// allocator serializes counter access per scope.
package storage

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the main storage interface combining all sub-stores.
type Store interface {
	DocumentStore
	ResultStore
	CounterStore

	// Close releases storage resources.
	Close(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}

// DocumentStore manages fiscal documents.
type DocumentStore interface {
	// CreateDocument stores a new document.
	CreateDocument(ctx context.Context, doc *fiscal.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*fiscal.Document, error)

	// UpdateDocument persists a document's current state.
	UpdateDocument(ctx context.Context, doc *fiscal.Document) error

	// ListDocuments returns documents with filtering.
	ListDocuments(ctx context.Context, filter *DocumentFilter) ([]*fiscal.Document, error)
}

// ResultStore manages transmission results. Results are append-only.
type ResultStore interface {
	// RecordResult appends one immutable transmission result.
	RecordResult(ctx context.Context, result *fiscal.TransmissionResult) error

	// ListResults returns the results recorded for a document, oldest
	// first.
	ListResults(ctx context.Context, documentID string) ([]*fiscal.TransmissionResult, error)
}

// CounterStore persists sequence counters. It mirrors
// [sequence.CounterStore] so a [Store] can back the allocator directly.
type CounterStore interface {
	// GetCounter returns the counter for a scope. Scopes that have never
	// allocated return a counter with Next zero, not an error.
	GetCounter(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error)

	// SaveCounter persists a counter.
	SaveCounter(ctx context.Context, counter *sequence.Counter) error
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	Kind   fiscal.DocumentKind
	Status fiscal.Status
	Limit  int
	Offset int
}
