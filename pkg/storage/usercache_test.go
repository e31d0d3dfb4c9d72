package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a MemoryStore and counts lookups that reach it.
type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	lookups int
}

func (s *countingStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.MemoryStore.GetUserByID(ctx, id)
}

func (s *countingStore) GetUserBySubject(ctx context.Context, subjectID string) (*User, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.MemoryStore.GetUserBySubject(ctx, subjectID)
}

func (s *countingStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func TestCachedStoreReadThrough(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(inner, 16, time.Minute)
	ctx := context.Background()

	u := seedUser(t, inner, "a@b.com", "sub-1")

	for i := 0; i < 3; i++ {
		got, err := cached.GetUserBySubject(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	}
	assert.Equal(t, 1, inner.lookupCount(), "repeat lookups served from cache")

	// The by-subject fill also primes the by-id cache.
	_, err := cached.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lookupCount())
}

func TestCachedStoreInvalidatesOnUpdate(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(inner, 16, time.Minute)
	ctx := context.Background()

	u := seedUser(t, inner, "a@b.com", "sub-1")
	_, err := cached.GetUserBySubject(ctx, "sub-1")
	require.NoError(t, err)

	u.FirstName = "Alice"
	require.NoError(t, cached.UpdateUser(ctx, u))

	got, err := cached.GetUserBySubject(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName, "update is visible immediately")
}

func TestCachedStoreInvalidatesOnDelete(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(inner, 16, time.Minute)
	ctx := context.Background()

	u := seedUser(t, inner, "a@b.com", "sub-1")
	_, err := cached.GetUserByID(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, cached.SoftDeleteUser(ctx, u.ID))

	_, err = cached.GetUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cached.GetUserBySubject(ctx, "sub-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreReturnsCopies(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(inner, 16, time.Minute)
	ctx := context.Background()

	u := seedUser(t, inner, "a@b.com", "sub-1")
	got, err := cached.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	got.Email = "mutated@b.com"

	fresh, err := cached.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", fresh.Email)
}
