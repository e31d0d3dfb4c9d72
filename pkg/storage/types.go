package storage

import (
	"time"
)

// User is the local account record mirroring a provider identity.
type User struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`

	Roles         []string `json:"roles"`
	EmailVerified bool     `json:"emailVerified"`
	Active        bool     `json:"active"`

	// Password reset state. The hash is sha256 hex of the raw token;
	// the raw token is only ever sent to the user.
	PasswordResetHash   string     `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// HasRole reports exact role membership.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// VendorRequestStatus is the review state of a vendor request.
type VendorRequestStatus string

const (
	VendorRequestPending  VendorRequestStatus = "pending"
	VendorRequestApproved VendorRequestStatus = "approved"
	VendorRequestRejected VendorRequestStatus = "rejected"
)

// VendorRequest is a customer's application to become a vendor.
type VendorRequest struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Description  string `json:"description,omitempty"`
	Phone        string `json:"phone,omitempty"`

	Status          VendorRequestStatus `json:"status"`
	RejectionReason string              `json:"rejectionReason,omitempty"`
	ReviewedBy      string              `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VendorProfile is the storefront record created when a request is approved.
type VendorProfile struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Description  string `json:"description,omitempty"`
	Phone        string `json:"phone,omitempty"`

	Rating      float64 `json:"rating"`
	RatingCount int64   `json:"ratingCount"`
	OrderCount  int64   `json:"orderCount"`
	Active      bool    `json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserFilter narrows and paginates user listings.
type UserFilter struct {
	Role   string
	Search string
	Active *bool
	Page   int
	Limit  int
}

// VendorRequestFilter narrows and paginates vendor request listings.
type VendorRequestFilter struct {
	Status VendorRequestStatus
	UserID string
	Page   int
	Limit  int
}

// VendorProfileFilter narrows and paginates storefront listings.
type VendorProfileFilter struct {
	Search       string
	BusinessType string
	ActiveOnly   bool
	SortByRating bool
	Page         int
	Limit        int
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
