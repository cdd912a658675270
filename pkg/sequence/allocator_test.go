package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-etims/pkg/fiscal"
)

// mapStore is an in-memory CounterStore for allocator tests.
type mapStore struct {
	mu       sync.Mutex
	counters map[Scope]Counter
	failGet  error
	failSave error
}

func newMapStore() *mapStore {
	return &mapStore{counters: make(map[Scope]Counter)}
}

func (s *mapStore) GetCounter(ctx context.Context, scope Scope) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	counter, ok := s.counters[scope]
	if !ok {
		return &Counter{Scope: scope}, nil
	}
	return &counter, nil
}

func (s *mapStore) SaveCounter(ctx context.Context, counter *Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.counters[counter.Scope] = *counter
	return nil
}

var saleScope = Scope{DeviceID: "KRACU0100000001", Kind: fiscal.KindSale}

func TestAllocateMonotonic(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	n1, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)
	require.NoError(t, alloc.Commit(ctx, saleScope, n1))

	n2, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n2)
}

func TestReleaseReissuesNumber(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	n, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	require.NoError(t, alloc.Release(ctx, saleScope, n))

	again, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, n, again)
}

func TestReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	n, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	require.NoError(t, alloc.Release(ctx, saleScope, n))
	require.NoError(t, alloc.Release(ctx, saleScope, n))

	next, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, n, next)
}

func TestReleaseMismatchIsNoOp(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	n, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)

	// Releasing a number that was never pending changes nothing
	require.NoError(t, alloc.Release(ctx, saleScope, n+10))

	next, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, n+1, next)
}

func TestCommitBlocksLaterRelease(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	n, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	require.NoError(t, alloc.Commit(ctx, saleScope, n))

	// A committed number can never be pulled back
	require.NoError(t, alloc.Release(ctx, saleScope, n))

	next, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	assert.Equal(t, n+1, next)
}

func TestScopesIndependent(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())
	purchaseScope := Scope{DeviceID: saleScope.DeviceID, Kind: fiscal.KindPurchase}
	otherDevice := Scope{DeviceID: "KRACU0100000002", Kind: fiscal.KindSale}

	n1, err := alloc.Allocate(ctx, saleScope)
	require.NoError(t, err)
	n2, err := alloc.Allocate(ctx, purchaseScope)
	require.NoError(t, err)
	n3, err := alloc.Allocate(ctx, otherDevice)
	require.NoError(t, err)

	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(1), n2)
	assert.Equal(t, int64(1), n3)
}

func TestAllocateStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	store.failGet = errors.New("backend down")
	alloc := NewAllocator(store)

	_, err := alloc.Allocate(ctx, saleScope)
	assert.Error(t, err)
}

func TestConcurrentAllocationGapFree(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMapStore())

	const workers = 20
	numbers := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := alloc.Allocate(ctx, saleScope)
			if err != nil {
				t.Error(err)
				return
			}
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for n := range numbers {
		assert.False(t, seen[n], "number %d issued twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[i], "number %d skipped", i)
	}
}
