package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("record already exists")
)

// UserStore persists local user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserBySubject(ctx context.Context, subjectID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByResetHash(ctx context.Context, hash string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, int64, error)

	// SoftDeleteUser marks the user deleted and inactive; the row is kept.
	SoftDeleteUser(ctx context.Context, id string) error
}

// VendorStore persists vendor requests and storefront profiles.
type VendorStore interface {
	CreateVendorRequest(ctx context.Context, request *VendorRequest) error
	GetVendorRequest(ctx context.Context, id string) (*VendorRequest, error)

	// GetVendorRequestByUser returns the user's most recent request.
	GetVendorRequestByUser(ctx context.Context, userID string) (*VendorRequest, error)
	UpdateVendorRequest(ctx context.Context, request *VendorRequest) error
	ListVendorRequests(ctx context.Context, filter VendorRequestFilter) ([]*VendorRequest, int64, error)

	CreateVendorProfile(ctx context.Context, profile *VendorProfile) error
	GetVendorProfile(ctx context.Context, id string) (*VendorProfile, error)
	GetVendorProfileByUser(ctx context.Context, userID string) (*VendorProfile, error)
	UpdateVendorProfile(ctx context.Context, profile *VendorProfile) error
	DeleteVendorProfile(ctx context.Context, id string) error
	ListVendorProfiles(ctx context.Context, filter VendorProfileFilter) ([]*VendorProfile, int64, error)
}

// Store is the full persistence surface the services depend on.
type Store interface {
	UserStore
	VendorStore

	Ping(ctx context.Context) error
	Close() error
}
