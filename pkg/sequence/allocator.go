// Package sequence issues gap-free, monotonically increasing fiscal
// document numbers per (device, document kind), with an explicit
// compensating rollback.
//
// The remote protocol carries no document-level idempotency key, so the
// only numbering integrity available is strict allocate/commit/rollback
// discipline: never report a number that was not truly committed, and
// never skip a number that could later collide. Allocation holds an
// exclusive per-scope lock across the full read-increment-write; release
// is idempotent and defensively ignores numbers that do not match the
// current uncommitted pointer.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirosfoundation/go-etims/pkg/fiscal"
)

// Scope identifies one counter: one per (device, document kind).
type Scope struct {
	DeviceID string              `bson:"device_id" json:"deviceId"`
	Kind     fiscal.DocumentKind `bson:"kind" json:"kind"`
}

func (s Scope) String() string {
	return s.DeviceID + "/" + string(s.Kind)
}

// Counter is the persisted state of one scope. Next is the value the next
// allocation returns. Pending is the most recently allocated,
// not-yet-committed value, or zero when none is outstanding.
type Counter struct {
	Scope   Scope `bson:"scope" json:"scope"`
	Next    int64 `bson:"next" json:"next"`
	Pending int64 `bson:"pending" json:"pending"`
}

// CounterStore persists counters. Implementations must return a counter
// with Next zero (not an error) for scopes that have never allocated.
//
// The allocator serializes access per scope; stores need no additional
// locking beyond their own internal consistency.
type CounterStore interface {
	GetCounter(ctx context.Context, scope Scope) (*Counter, error)
	SaveCounter(ctx context.Context, counter *Counter) error
}

// Allocator issues and rolls back fiscal numbers over a CounterStore.
// Safe for concurrent use; scopes proceed fully in parallel.
type Allocator struct {
	store CounterStore

	mu    sync.Mutex
	locks map[Scope]*sync.Mutex
}

// NewAllocator creates an allocator over the given store.
func NewAllocator(store CounterStore) *Allocator {
	return &Allocator{
		store: store,
		locks: make(map[Scope]*sync.Mutex),
	}
}

// scopeLock returns the mutex guarding one scope, creating it on first use.
func (a *Allocator) scopeLock(scope Scope) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[scope] = lock
	}
	return lock
}

// Allocate issues the next number for a scope. The returned number is
// pending until either the caller's success is recorded via [Allocator.Commit]
// or the number is returned via [Allocator.Release].
func (a *Allocator) Allocate(ctx context.Context, scope Scope) (int64, error) {
	lock := a.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	counter, err := a.store.GetCounter(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("loading counter %s: %w", scope, err)
	}
	if counter == nil {
		counter = &Counter{Scope: scope}
	}
	if counter.Next == 0 {
		counter.Next = 1
	}

	number := counter.Next
	counter.Next = number + 1
	counter.Pending = number

	if err := a.store.SaveCounter(ctx, counter); err != nil {
		return 0, fmt.Errorf("saving counter %s: %w", scope, err)
	}
	return number, nil
}

// Release returns an allocated-but-unconfirmed number so it can be
// reissued. It is idempotent: releasing a number that does not match the
// current uncommitted pointer (already released, already committed, or
// from an out-of-order attempt) is a no-op, never a state corruption.
func (a *Allocator) Release(ctx context.Context, scope Scope, number int64) error {
	lock := a.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	counter, err := a.store.GetCounter(ctx, scope)
	if err != nil {
		return fmt.Errorf("loading counter %s: %w", scope, err)
	}
	if counter == nil || counter.Pending != number {
		return nil
	}

	counter.Next = number
	counter.Pending = 0
	if err := a.store.SaveCounter(ctx, counter); err != nil {
		return fmt.Errorf("saving counter %s: %w", scope, err)
	}
	return nil
}

// Commit marks a pending number as permanently consumed by a confirmed
// receipt. After Commit, Release of the same number is a no-op. Committing
// a number that is not pending is itself a no-op, so commit and release
// are mutually exclusive, exactly-once effects.
func (a *Allocator) Commit(ctx context.Context, scope Scope, number int64) error {
	lock := a.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	counter, err := a.store.GetCounter(ctx, scope)
	if err != nil {
		return fmt.Errorf("loading counter %s: %w", scope, err)
	}
	if counter == nil || counter.Pending != number {
		return nil
	}

	counter.Pending = 0
	if err := a.store.SaveCounter(ctx, counter); err != nil {
		return fmt.Errorf("saving counter %s: %w", scope, err)
	}
	return nil
}
