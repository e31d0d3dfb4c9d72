package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used in development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	requests map[string]*VendorRequest
	profiles map[string]*VendorProfile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		requests: make(map[string]*VendorRequest),
		profiles: make(map[string]*VendorProfile),
		now:      time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

func copyUser(u *User) *User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	return &out
}

func copyRequest(r *VendorRequest) *VendorRequest {
	out := *r
	return &out
}

func copyProfile(p *VendorProfile) *VendorProfile {
	out := *p
	return &out
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(existing.Email, user.Email) || existing.SubjectID == user.SubjectID {
			return ErrConflict
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok && u.DeletedAt == nil {
		return copyUser(u), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserBySubject(ctx context.Context, subjectID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.SubjectID == subjectID && u.DeletedAt == nil {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) && u.DeletedAt == nil {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByResetHash(ctx context.Context, hash string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PasswordResetHash != "" && u.PasswordResetHash == hash && u.DeletedAt == nil {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.now().UTC()
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*User
	for _, u := range s.users {
		if u.DeletedAt != nil {
			continue
		}
		if filter.Role != "" && !u.HasRole(filter.Role) {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.Email), needle) &&
				!strings.Contains(strings.ToLower(u.Username), needle) {
				continue
			}
		}
		matched = append(matched, copyUser(u))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

func (s *MemoryStore) SoftDeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	now := s.now().UTC()
	u.DeletedAt = &now
	u.Active = false
	u.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CreateVendorRequest(ctx context.Context, request *VendorRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := s.now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = VendorRequestPending
	}
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *MemoryStore) GetVendorRequest(ctx context.Context, id string) (*VendorRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.requests[id]; ok {
		return copyRequest(r), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetVendorRequestByUser(ctx context.Context, userID string) (*VendorRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *VendorRequest
	for _, r := range s.requests {
		if r.UserID != userID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyRequest(latest), nil
}

func (s *MemoryStore) UpdateVendorRequest(ctx context.Context, request *VendorRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requests[request.ID]
	if !ok {
		return ErrNotFound
	}
	request.CreatedAt = existing.CreatedAt
	request.UpdatedAt = s.now().UTC()
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *MemoryStore) ListVendorRequests(ctx context.Context, filter VendorRequestFilter) ([]*VendorRequest, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*VendorRequest
	for _, r := range s.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		matched = append(matched, copyRequest(r))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

func (s *MemoryStore) CreateVendorProfile(ctx context.Context, profile *VendorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.profiles {
		if p.UserID == profile.UserID {
			return ErrConflict
		}
	}

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := s.now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (s *MemoryStore) GetVendorProfile(ctx context.Context, id string) (*VendorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[id]; ok {
		return copyProfile(p), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetVendorProfileByUser(ctx context.Context, userID string) (*VendorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			return copyProfile(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateVendorProfile(ctx context.Context, profile *VendorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[profile.ID]
	if !ok {
		return ErrNotFound
	}
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = s.now().UTC()
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (s *MemoryStore) DeleteVendorProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(s.profiles, id)
	return nil
}

func (s *MemoryStore) ListVendorProfiles(ctx context.Context, filter VendorProfileFilter) ([]*VendorProfile, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*VendorProfile
	for _, p := range s.profiles {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.BusinessType != "" && !strings.EqualFold(p.BusinessType, filter.BusinessType) {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.BusinessName), needle) &&
				!strings.Contains(strings.ToLower(p.Description), needle) {
				continue
			}
		}
		matched = append(matched, copyProfile(p))
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortByRating && matched[i].Rating != matched[j].Rating {
			return matched[i].Rating > matched[j].Rating
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

func paginate[T any](items []T, page, limit int) []T {
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
