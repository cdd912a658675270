package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
)

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	doc := &fiscal.Document{
		ID:     "doc-1",
		Kind:   fiscal.KindSale,
		Status: fiscal.StatusDraft,
		Counterparty: fiscal.Counterparty{
			TIN:  "P000000045R",
			Name: "Test Customer",
		},
		Currency: "KES",
		IssuedAt: time.Now(),
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusDraft, got.Status)

	// Mutating the returned copy must not affect stored state
	got.Status = fiscal.StatusConfirmed
	again, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusDraft, again.Status)

	doc.Status = fiscal.StatusConfirmed
	doc.Number = 7
	require.NoError(t, store.UpdateDocument(ctx, doc))

	updated, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, fiscal.StatusConfirmed, updated.Status)
	assert.Equal(t, int64(7), updated.Number)
}

func TestGetDocumentNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListDocumentsFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, doc := range []*fiscal.Document{
		{ID: "a", Kind: fiscal.KindSale, Status: fiscal.StatusDraft},
		{ID: "b", Kind: fiscal.KindSale, Status: fiscal.StatusConfirmed},
		{ID: "c", Kind: fiscal.KindPurchase, Status: fiscal.StatusDraft},
	} {
		require.NoError(t, store.CreateDocument(ctx, doc))
	}

	sales, err := store.ListDocuments(ctx, &storage.DocumentFilter{Kind: fiscal.KindSale})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	drafts, err := store.ListDocuments(ctx, &storage.DocumentFilter{Status: fiscal.StatusDraft})
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	paged, err := store.ListDocuments(ctx, &storage.DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].ID)
}

func TestResultsOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, r := range []*fiscal.TransmissionResult{
		{ID: "r1", DocumentID: "doc-1", Outcome: fiscal.OutcomeTransportError},
		{ID: "r2", DocumentID: "doc-1", Outcome: fiscal.OutcomeSuccess},
		{ID: "r3", DocumentID: "other", Outcome: fiscal.OutcomeRejected},
	} {
		require.NoError(t, store.RecordResult(ctx, r))
	}

	results, err := store.ListResults(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "r1", results[0].ID)
	assert.Equal(t, "r2", results[1].ID)
}

func TestCounterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	scope := sequence.Scope{DeviceID: "KRACU0100000001", Kind: fiscal.KindSale}

	// Unknown scope yields a fresh counter, not an error
	counter, err := store.GetCounter(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter.Next)

	counter.Next = 5
	counter.Pending = 4
	require.NoError(t, store.SaveCounter(ctx, counter))

	got, err := store.GetCounter(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Next)
	assert.Equal(t, int64(4), got.Pending)
}
