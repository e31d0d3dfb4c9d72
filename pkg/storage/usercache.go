package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore wraps a Store with a read-through, TTL-bounded LRU cache
// for user lookups. Every mutation invalidates the affected entries, so
// a stale read lasts at most the TTL.
type CachedStore struct {
	Store
	byID      *expirable.LRU[string, *User]
	bySubject *expirable.LRU[string, *User]
}

// NewCachedStore wraps inner. Zero values default to 512 entries / 1 minute.
func NewCachedStore(inner Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{
		Store:     inner,
		byID:      expirable.NewLRU[string, *User](size, nil, ttl),
		bySubject: expirable.NewLRU[string, *User](size, nil, ttl),
	}
}

func (s *CachedStore) cache(u *User) {
	s.byID.Add(u.ID, copyUser(u))
	s.bySubject.Add(u.SubjectID, copyUser(u))
}

func (s *CachedStore) invalidate(u *User) {
	s.byID.Remove(u.ID)
	s.bySubject.Remove(u.SubjectID)
}

func (s *CachedStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	if u, ok := s.byID.Get(id); ok {
		return copyUser(u), nil
	}
	u, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(u)
	return u, nil
}

func (s *CachedStore) GetUserBySubject(ctx context.Context, subjectID string) (*User, error) {
	if u, ok := s.bySubject.Get(subjectID); ok {
		return copyUser(u), nil
	}
	u, err := s.Store.GetUserBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	s.cache(u)
	return u, nil
}

func (s *CachedStore) UpdateUser(ctx context.Context, user *User) error {
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.invalidate(user)
	return nil
}

func (s *CachedStore) SoftDeleteUser(ctx context.Context, id string) error {
	if u, ok := s.byID.Get(id); ok {
		s.invalidate(u)
	} else {
		s.byID.Remove(id)
	}
	return s.Store.SoftDeleteUser(ctx, id)
}
