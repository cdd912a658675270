// Package memory implements the storage interfaces in process memory.
// It backs tests and the demo environment; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
)

// Store implements storage.Store with in-memory maps.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*fiscal.Document
	results   map[string][]*fiscal.TransmissionResult // keyed by document ID
	counters  map[sequence.Scope]*sequence.Counter
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]*fiscal.Document),
		results:   make(map[string][]*fiscal.TransmissionResult),
		counters:  make(map[sequence.Scope]*sequence.Counter),
	}
}

// CreateDocument implements storage.DocumentStore.
func (s *Store) CreateDocument(ctx context.Context, doc *fiscal.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

// GetDocument implements storage.DocumentStore.
func (s *Store) GetDocument(ctx context.Context, id string) (*fiscal.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

// UpdateDocument implements storage.DocumentStore. Documents not yet
// created are stored, matching the orchestrator's write-through use.
func (s *Store) UpdateDocument(ctx context.Context, doc *fiscal.Document) error {
	return s.CreateDocument(ctx, doc)
}

// ListDocuments implements storage.DocumentStore.
func (s *Store) ListDocuments(ctx context.Context, filter *storage.DocumentFilter) ([]*fiscal.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*fiscal.Document
	for _, doc := range s.documents {
		if filter != nil {
			if filter.Kind != "" && doc.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && doc.Status != filter.Status {
				continue
			}
		}
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(docs) {
				return nil, nil
			}
			docs = docs[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(docs) {
			docs = docs[:filter.Limit]
		}
	}
	return docs, nil
}

// RecordResult implements storage.ResultStore.
func (s *Store) RecordResult(ctx context.Context, result *fiscal.TransmissionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	s.results[result.DocumentID] = append(s.results[result.DocumentID], &copied)
	return nil
}

// ListResults implements storage.ResultStore.
func (s *Store) ListResults(ctx context.Context, documentID string) ([]*fiscal.TransmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recorded := s.results[documentID]
	results := make([]*fiscal.TransmissionResult, len(recorded))
	for i, r := range recorded {
		copied := *r
		results[i] = &copied
	}
	return results, nil
}

// GetCounter implements storage.CounterStore.
func (s *Store) GetCounter(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counter, ok := s.counters[scope]
	if !ok {
		return &sequence.Counter{Scope: scope}, nil
	}
	copied := *counter
	return &copied, nil
}

// SaveCounter implements storage.CounterStore.
func (s *Store) SaveCounter(ctx context.Context, counter *sequence.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *counter
	s.counters[counter.Scope] = &copied
	return nil
}

// Close implements storage.Store.
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error { return nil }
